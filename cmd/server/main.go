package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/chatwarden/internal/adapter/adminlookup"
	"github.com/pscheid92/chatwarden/internal/adapter/eventpublisher"
	"github.com/pscheid92/chatwarden/internal/adapter/httpserver"
	"github.com/pscheid92/chatwarden/internal/adapter/memory"
	"github.com/pscheid92/chatwarden/internal/adapter/metrics"
	"github.com/pscheid92/chatwarden/internal/adapter/postgres"
	"github.com/pscheid92/chatwarden/internal/adapter/redis"
	"github.com/pscheid92/chatwarden/internal/app"
	"github.com/pscheid92/chatwarden/internal/authz"
	"github.com/pscheid92/chatwarden/internal/domain"
	"github.com/pscheid92/chatwarden/internal/moderation"
	"github.com/pscheid92/chatwarden/internal/platform/config"
	"github.com/pscheid92/chatwarden/internal/platform/logging"
	"github.com/pscheid92/chatwarden/internal/platform/retry"
	"github.com/pscheid92/chatwarden/internal/platform/version"
)

const connectTimeout = 30 * time.Second

// recordStore is a RecordStore that can report its own health.
type recordStore interface {
	domain.RecordStore
	Ping(ctx context.Context) error
}

func connectPolicy(clock clockwork.Clock, what string) retry.Policy {
	return retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Clock:          clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Connection attempt failed, retrying", "target", what, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	redisMetrics := metrics.NewRedisMetrics(reg)
	hooks := []goredis.Hook{
		redis.NewMetricsHook(redisMetrics, clock),
		redis.NewCircuitBreakerHook(redis.DefaultBreakerSettings, redisMetrics),
	}

	client, err := retry.Do(ctx, connectPolicy(clock, "redis"), retry.RetryUnlessCanceled, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, hooks...)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupStore(cfg *config.Config, reg prometheus.Registerer, rdb *goredis.Client, clock clockwork.Clock) (recordStore, func()) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redis.WarnIfVolatile(context.Background(), rdb)
		return redis.NewRecordStore(rdb, clock), func() {}

	case config.BackendMemory:
		slog.Warn("Using in-memory record store; moderation state is lost on restart")
		return memory.NewStore(clock), func() {}

	default:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		tracer := postgres.NewQueryTracer(metrics.NewDatabaseMetrics(reg), clock)
		pool, err := retry.Do(ctx, connectPolicy(clock, "postgres"), retry.RetryUnlessCanceled, func(ctx context.Context) (*pgxpool.Pool, error) {
			return postgres.Connect(ctx, cfg.DatabaseURL, tracer)
		})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}

		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		return postgres.NewRecordStore(pool, clock), pool.Close
	}
}

func setupAdminChecker(cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) domain.AdminChecker {
	ids := make([]domain.UserID, 0, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		ids = append(ids, domain.UserID(id))
	}
	checkers := []domain.AdminChecker{adminlookup.NewStatic(ids)}

	if cfg.AdminLookupURL != "" {
		cacheMetrics := metrics.NewAdminCacheMetrics(reg)
		upstream := adminlookup.NewHTTP(cfg.AdminLookupURL, cfg.AdminLookupToken,
			adminlookup.WithMetrics(cacheMetrics),
			adminlookup.WithClock(clock),
			adminlookup.WithLogger(slog.Default()),
		)
		checkers = append(checkers, adminlookup.NewCached(upstream, cfg.AdminCacheSize, cfg.AdminCacheTTL, cacheMetrics))
		slog.Info("Admin lookup enabled", "url", cfg.AdminLookupURL, "cache_ttl", cfg.AdminCacheTTL)
	}

	return adminlookup.Any(checkers...)
}

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "store", cfg.StoreBackend, "build", version.Get())

	reg := metrics.NewRegistry()

	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient = setupRedis(cfg, reg, clock)
		defer func() { _ = redisClient.Close() }()
	}

	store, closeStore := setupStore(cfg, reg, redisClient, clock)
	defer closeStore()

	admins := setupAdminChecker(cfg, reg, clock)

	protectedIDs := make([]domain.UserID, 0, len(cfg.ProtectedUserIDs))
	for _, id := range cfg.ProtectedUserIDs {
		protectedIDs = append(protectedIDs, domain.UserID(id))
	}
	engine := moderation.NewEngine(store, admins,
		moderation.WithProtectedIDs(protectedIDs...),
		moderation.WithProtectedUsernames(cfg.ProtectedUsernames...),
	)
	gate := authz.NewGate(admins, store)

	// stays a nil interface without Redis so the service skips publishing
	var events domain.EventPublisher
	if redisClient != nil {
		events = eventpublisher.New(redisClient, cfg.EventsChannel, metrics.NewEventMetrics(reg))
	} else {
		slog.Warn("REDIS_URL not set; moderation events will not be published")
	}

	appSvc := app.NewService(gate, engine, store, events, clock,
		app.WithRecovery(),
		app.WithLogging(),
		app.WithMetrics(metrics.NewModerationMetrics(reg), clock),
		app.ChatScope(cfg.ChatID),
	)

	healthChecks := []httpserver.HealthCheck{{Name: "store", Check: store.Ping}}
	if redisClient != nil && cfg.StoreBackend != config.BackendRedis {
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	srv := httpserver.NewServer(cfg, appSvc, healthChecks,
		httpserver.WithMetrics(metrics.Handler(reg), metrics.NewHTTPMetrics(reg)),
		httpserver.WithClock(clock),
	)

	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
