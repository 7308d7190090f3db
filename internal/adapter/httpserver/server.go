// Package httpserver exposes the moderation service as a JSON control API for the chat platform bridge.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pscheid92/chatwarden/internal/adapter/metrics"
	"github.com/pscheid92/chatwarden/internal/domain"
	"github.com/pscheid92/chatwarden/internal/platform/config"
)

type appService interface {
	Handle(ctx context.Context, req *domain.Request) (*domain.Result, error)
	GetRecord(ctx context.Context, userID domain.UserID) (*domain.UserRecord, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	app    appService

	validate       *validator.Validate
	healthChecks   []HealthCheck
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	clock          clockwork.Clock
	startTime      time.Time
}

type Option func(*Server)

// WithMetrics serves handler on /metrics and records request metrics with m.
func WithMetrics(handler http.Handler, m *metrics.HTTPMetrics) Option {
	return func(s *Server) {
		s.metricsHandler = handler
		s.httpMetrics = m
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

func NewServer(cfg *config.Config, app appService, healthChecks []HealthCheck, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		healthChecks: healthChecks,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.startTime = srv.clock.Now()

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the full middleware stack.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
