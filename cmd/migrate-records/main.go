// Command migrate-records copies moderation records from a Redis store into Postgres.
// It is idempotent: warn counts and trust flags are overwritten, existing ballots are kept.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/chatwarden/internal/adapter/postgres"
	"github.com/pscheid92/chatwarden/internal/adapter/redis"
	"github.com/pscheid92/chatwarden/internal/domain"
)

// importer is the Postgres side of the copy.
type importer interface {
	Import(ctx context.Context, rec domain.UserRecord, ballots []domain.Ballot) (postgres.ImportResult, error)
}

// source is the Redis side of the copy.
type source interface {
	Each(ctx context.Context, fn func(rec *domain.UserRecord, ballots []domain.Ballot) error) error
}

type summary struct {
	scanned, written, skipped, ballots int
}

func main() {
	var (
		redisURL    = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		dryRun      = flag.Bool("dry-run", false, "Dry run mode (don't write to Postgres)")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}
	if *databaseURL == "" && !*dryRun {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	rdb, err := redis.NewClient(ctx, *redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	var dst importer = dryRunImporter{}
	if !*dryRun {
		pool, err := postgres.Connect(ctx, *databaseURL, nil)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		dst = postgres.NewRecordStore(pool, clock)
	}

	start := clock.Now()
	slog.Info("Starting migration", "dry_run", *dryRun)

	sum, err := migrateRecords(ctx, redis.NewRecordStore(rdb, clock), dst)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	slog.Info("Migration summary",
		"scanned", sum.scanned,
		"written", sum.written,
		"skipped", sum.skipped,
		"ballots", sum.ballots,
		"duration_ms", clock.Since(start).Milliseconds())
}

func migrateRecords(ctx context.Context, src source, dst importer) (summary, error) {
	var sum summary
	err := src.Each(ctx, func(rec *domain.UserRecord, ballots []domain.Ballot) error {
		sum.scanned++

		res, err := dst.Import(ctx, *rec, ballots)
		if err != nil {
			return fmt.Errorf("import user %d: %w", rec.UserID, err)
		}

		if !res.RecordWritten && res.BallotsAdded == 0 {
			slog.Debug("Nothing to copy", "user_id", rec.UserID)
			sum.skipped++
			return nil
		}
		if res.RecordWritten {
			sum.written++
		}
		sum.ballots += res.BallotsAdded

		slog.Debug("Migrated record",
			"user_id", rec.UserID,
			"warns", rec.Warns,
			"trusted", rec.Trusted,
			"ballots", res.BallotsAdded)
		return nil
	})
	return sum, err
}

// dryRunImporter reports what would be written without touching Postgres.
type dryRunImporter struct{}

func (dryRunImporter) Import(_ context.Context, rec domain.UserRecord, ballots []domain.Ballot) (postgres.ImportResult, error) {
	return postgres.ImportResult{
		RecordWritten: rec.Warns > 0 || rec.Trusted,
		BallotsAdded:  len(ballots),
	}, nil
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}

