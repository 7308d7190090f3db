package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
)

// NewClient parses redisURL, installs the given hooks and verifies the connection.
func NewClient(ctx context.Context, redisURL string, hooks ...goredis.Hook) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	for _, h := range hooks {
		rdb.AddHook(h)
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// WarnIfVolatile logs a warning when the server does not persist writes with AOF.
// Servers that refuse CONFIG (managed offerings) are only logged at debug level.
func WarnIfVolatile(ctx context.Context, rdb goredis.Cmdable) {
	res, err := rdb.ConfigGet(ctx, "appendonly").Result()
	if err != nil {
		slog.DebugContext(ctx, "Could not read redis persistence settings", "error", err)
		return
	}
	if !strings.EqualFold(res["appendonly"], "yes") {
		slog.WarnContext(ctx, "Redis AOF persistence is disabled; moderation records may be lost on restart")
	}
}
