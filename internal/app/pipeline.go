package app

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatwarden/internal/domain"
)

// Handler processes one moderation request.
type Handler func(ctx context.Context, req *domain.Request) (*domain.Result, error)

// Middleware wraps a Handler with a cross-cutting concern.
type Middleware func(Handler) Handler

// Chain applies mws so that the first one is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ChatScope rejects requests from any chat other than chatID. A zero chatID disables the check.
func ChatScope(chatID int64) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *domain.Request) (*domain.Result, error) {
			if chatID != 0 && req.ChatID != chatID {
				slog.DebugContext(ctx, "Request from foreign chat ignored", "chat_id", req.ChatID, "kind", req.Kind)
				return domain.Rejected(req.Kind, domain.ErrWrongChat), nil
			}
			return next(ctx, req)
		}
	}
}

func WithLogging() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *domain.Request) (*domain.Result, error) {
			res, err := next(ctx, req)

			attrs := []any{
				"kind", req.Kind,
				"chat_id", req.ChatID,
				"caller_id", req.Caller.ID,
			}
			if req.Target != nil {
				attrs = append(attrs, "target_id", req.Target.ID)
			}

			if err != nil {
				attrs = append(attrs, "error", err)
				slog.ErrorContext(ctx, "Moderation action failed", attrs...)
				return res, err
			}

			attrs = append(attrs, "outcome", res.Outcome)
			if res.Reason != "" {
				attrs = append(attrs, "reason", res.Reason)
			}
			slog.InfoContext(ctx, "Moderation action handled", attrs...)
			return res, nil
		}
	}
}

// ActionObserver receives the outcome of every handled request.
type ActionObserver interface {
	ActionHandled(kind domain.ActionKind, res *domain.Result, err error, elapsed time.Duration)
}

func WithMetrics(obs ActionObserver, clock clockwork.Clock) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *domain.Request) (*domain.Result, error) {
			start := clock.Now()
			res, err := next(ctx, req)
			obs.ActionHandled(req.Kind, res, err, clock.Since(start))
			return res, err
		}
	}
}

// WithRecovery turns a panic into an error so it never escapes the pipeline.
func WithRecovery() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *domain.Request) (res *domain.Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "Panic while handling moderation request",
						"kind", req.Kind,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					res, err = nil, fmt.Errorf("panic handling %s: %v", req.Kind, r)
				}
			}()
			return next(ctx, req)
		}
	}
}
