package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pscheid92/chatwarden/internal/domain"
	"github.com/pscheid92/chatwarden/internal/platform/config"
)

const testToken = "test-api-token"

type mockAppService struct {
	handleFn    func(ctx context.Context, req *domain.Request) (*domain.Result, error)
	getRecordFn func(ctx context.Context, userID domain.UserID) (*domain.UserRecord, error)
}

func (m *mockAppService) Handle(ctx context.Context, req *domain.Request) (*domain.Result, error) {
	if m.handleFn != nil {
		return m.handleFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) GetRecord(ctx context.Context, userID domain.UserID) (*domain.UserRecord, error) {
	if m.getRecordFn != nil {
		return m.getRecordFn(ctx, userID)
	}
	return &domain.UserRecord{UserID: userID, VoteKickVoters: []domain.UserID{}}, nil
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		APIToken:           testToken,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
}

func newTestServer(t *testing.T, app appService, healthChecks ...HealthCheck) *Server {
	t.Helper()
	return NewServer(testConfig(), app, healthChecks)
}

// do sends a request through the full middleware stack.
func do(t *testing.T, srv *Server, method, path, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
