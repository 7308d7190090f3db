package adminlookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/chatwarden/internal/adapter/metrics"
	"github.com/pscheid92/chatwarden/internal/domain"
)

func TestStatic(t *testing.T) {
	s := NewStatic([]domain.UserID{1, 2})

	ok, err := s.IsAdmin(context.Background(), -100, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAdmin(context.Background(), -100, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAny(t *testing.T) {
	boom := errors.New("boom")
	failing := domain.AdminCheckerFunc(func(context.Context, int64, domain.UserID) (bool, error) { return false, boom })
	no := domain.AdminCheckerFunc(func(context.Context, int64, domain.UserID) (bool, error) { return false, nil })
	ctx := context.Background()

	ok, err := Any(failing, NewStatic([]domain.UserID{7}), nil).IsAdmin(ctx, 0, 7)
	require.NoError(t, err)
	assert.True(t, ok, "a positive answer wins over an earlier failure")

	ok, err = Any(no, failing).IsAdmin(ctx, 0, 7)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)

	ok, err = Any(no).IsAdmin(ctx, 0, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func newBridge(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_MemberStatuses(t *testing.T) {
	srv := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/chats/-100/members/1":
			_, _ = w.Write([]byte(`{"status":"creator"}`))
		case "/chats/-100/members/2":
			_, _ = w.Write([]byte(`{"status":"Administrator"}`))
		case "/chats/-100/members/3":
			_, _ = w.Write([]byte(`{"status":"member"}`))
		default:
			http.NotFound(w, r)
		}
	})

	m := metrics.NewAdminCacheMetrics(prometheus.NewRegistry())
	checker := NewHTTP(srv.URL+"/", "secret", WithMaxRetries(0), WithMetrics(m))
	ctx := context.Background()

	for id, want := range map[domain.UserID]bool{1: true, 2: true, 3: false, 4: false} {
		ok, err := checker.IsAdmin(ctx, -100, id)
		require.NoError(t, err, "user %d", id)
		assert.Equal(t, want, ok, "user %d", id)
	}
	assert.InDelta(t, 4, testutil.ToFloat64(m.Lookups.WithLabelValues("ok")), 0)
}

func TestHTTP_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newBridge(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"administrator"}`))
	})

	checker := NewHTTP(srv.URL, "", WithMaxRetries(2), WithRetryWait(time.Millisecond, time.Millisecond))
	ok, err := checker.IsAdmin(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTP_UnexpectedStatusAndBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := newBridge(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	m := metrics.NewAdminCacheMetrics(prometheus.NewRegistry())
	checker := NewHTTP(srv.URL, "", WithMaxRetries(0), WithMetrics(m), WithBreakerSettings(gobreaker.Settings{
		Timeout:     time.Hour,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 2 },
	}))
	ctx := context.Background()

	for range 2 {
		_, err := checker.IsAdmin(ctx, 1, 1)
		assert.ErrorIs(t, err, ErrUnexpectedStatus)
	}
	assert.Equal(t, gobreaker.StateOpen, checker.BreakerState())

	_, err := checker.IsAdmin(ctx, 1, 1)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.Lookups.WithLabelValues("rejected")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Lookups.WithLabelValues("error")), 0)
}

func TestHTTP_MalformedBody(t *testing.T) {
	srv := newBridge(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := NewHTTP(srv.URL, "", WithMaxRetries(0)).IsAdmin(context.Background(), 1, 1)
	assert.ErrorContains(t, err, "decode member status")
}

type countingChecker struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	err   error
}

func (c *countingChecker) IsAdmin(context.Context, int64, domain.UserID) (bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.gate != nil {
		<-c.gate
	}
	return true, c.err
}

func (c *countingChecker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCached_HitsAndMisses(t *testing.T) {
	next := &countingChecker{}
	m := metrics.NewAdminCacheMetrics(prometheus.NewRegistry())
	cached := NewCached(next, 16, time.Minute, m)
	ctx := context.Background()

	for range 3 {
		ok, err := cached.IsAdmin(ctx, 1, 5)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	_, err := cached.IsAdmin(ctx, 2, 5)
	require.NoError(t, err)

	assert.Equal(t, 2, next.count(), "keyed by chat and user")
	assert.Equal(t, 2, cached.Len())
	assert.InDelta(t, 2, testutil.ToFloat64(m.Hits), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Misses), 0)
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	next := &countingChecker{err: errors.New("bridge down")}
	cached := NewCached(next, 16, time.Minute, nil)

	for range 2 {
		_, err := cached.IsAdmin(context.Background(), 1, 5)
		assert.Error(t, err)
	}
	assert.Equal(t, 2, next.count())
	assert.Zero(t, cached.Len())
}

func TestCached_ConcurrentMissesShareOneLookup(t *testing.T) {
	next := &countingChecker{gate: make(chan struct{})}
	cached := NewCached(next, 16, time.Minute, nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := cached.IsAdmin(context.Background(), 1, 9)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}

	require.Eventually(t, func() bool { return next.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(next.gate)
	wg.Wait()

	assert.Equal(t, 1, next.count())
	ok, err := cached.IsAdmin(context.Background(), 1, 9)
	require.NoError(t, err)
	assert.True(t, ok)
}
