package httpserver

import (
	"crypto/subtle"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/pscheid92/chatwarden/internal/platform/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware(s.observeError))
	s.echo.Use(middleware.BodyLimit("64K"))

	s.registerHealthRoutes()
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	v1 := s.echo.Group("/v1",
		s.apiKeyAuth(),
		newRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst),
	)
	s.registerAPIRoutes(v1)
}

func (s *Server) observeError(t apperrors.ErrorType) {
	if s.httpMetrics != nil {
		s.httpMetrics.ObserveError(string(t))
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health/live" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// apiKeyAuth requires "Authorization: Bearer <API_TOKEN>".
func (s *Server) apiKeyAuth() echo.MiddlewareFunc {
	token := []byte(s.config.APIToken)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:Authorization",
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return len(token) > 0 && subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
		},
		ErrorHandler: func(_ error, _ echo.Context) error {
			return apperrors.UnauthorizedError("missing or invalid API token")
		},
	})
}
