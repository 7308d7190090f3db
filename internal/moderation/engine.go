// Package moderation implements the moderation state engine: warn counting, trusted status and
// vote-kick accumulation with threshold detection.
//
// The engine never bans anyone. It reports ThresholdReached and leaves the ban to the caller.
// It keeps no state across calls; the RecordStore owns everything persisted.
package moderation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pscheid92/chatwarden/internal/domain"
)

type Engine struct {
	store  domain.RecordStore
	admins domain.AdminChecker

	protectedIDs   map[domain.UserID]struct{}
	protectedNames map[string]struct{}
}

type Option func(*Engine)

// WithProtectedIDs marks identities that can never be vote-kicked.
func WithProtectedIDs(ids ...domain.UserID) Option {
	return func(e *Engine) {
		for _, id := range ids {
			e.protectedIDs[id] = struct{}{}
		}
	}
}

// WithProtectedUsernames marks usernames that can never be vote-kicked. Matching ignores case and a leading "@".
func WithProtectedUsernames(names ...string) Option {
	return func(e *Engine) {
		for _, name := range names {
			if n := domain.NormalizeUsername(name); n != "" {
				e.protectedNames[n] = struct{}{}
			}
		}
	}
}

// NewEngine creates an engine. admins may be nil, in which case no target counts as an admin.
func NewEngine(store domain.RecordStore, admins domain.AdminChecker, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		admins:         admins,
		protectedIDs:   make(map[domain.UserID]struct{}),
		protectedNames: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Warn increments the warn count. There is no ceiling.
func (e *Engine) Warn(ctx context.Context, target domain.UserID) (int, error) {
	change, err := e.store.AddWarns(ctx, target, 1)
	if err != nil {
		return 0, fmt.Errorf("warn: %w", err)
	}
	slog.DebugContext(ctx, "Warn applied", "target_id", target, "warns", change.Current)
	return change.Current, nil
}

type UnwarnResult struct {
	Warns   int
	Changed bool
}

// Zero reports whether the target is left without warns.
func (r UnwarnResult) Zero() bool {
	return r.Warns == 0
}

// Unwarn decrements the warn count, clamping at zero. Unwarning a user with no warns is a no-op.
func (e *Engine) Unwarn(ctx context.Context, target domain.UserID) (UnwarnResult, error) {
	change, err := e.store.AddWarns(ctx, target, -1)
	if err != nil {
		return UnwarnResult{}, fmt.Errorf("unwarn: %w", err)
	}
	return UnwarnResult{Warns: change.Current, Changed: change.Changed()}, nil
}

func (e *Engine) ClearWarns(ctx context.Context, target domain.UserID) error {
	if err := e.store.SetWarns(ctx, target, 0); err != nil {
		return fmt.Errorf("clear warns: %w", err)
	}
	return nil
}

func (e *Engine) GetWarns(ctx context.Context, target domain.UserID) (int, error) {
	warns, err := e.store.GetWarns(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("get warns: %w", err)
	}
	return warns, nil
}

// Trust marks the target as trusted. changed is false if it already was.
func (e *Engine) Trust(ctx context.Context, target domain.UserID) (changed bool, err error) {
	return e.setTrusted(ctx, target, true)
}

// Untrust removes trusted status. changed is false if the target was not trusted.
func (e *Engine) Untrust(ctx context.Context, target domain.UserID) (changed bool, err error) {
	return e.setTrusted(ctx, target, false)
}

func (e *Engine) setTrusted(ctx context.Context, target domain.UserID, trusted bool) (bool, error) {
	previous, err := e.store.SwapTrusted(ctx, target, trusted)
	if err != nil {
		return false, fmt.Errorf("swap trusted: %w", err)
	}
	if previous == trusted {
		return false, nil
	}
	slog.DebugContext(ctx, "Trusted status changed", "target_id", target, "trusted", trusted)
	return true, nil
}

type VoteKickResult struct {
	Tally            int
	ThresholdReached bool
}

// VoteKick records voter's vote against target and reports whether the ban threshold is reached.
// Protected, trusted and admin targets are rejected with a *domain.ProtectedError before any write.
func (e *Engine) VoteKick(ctx context.Context, chatID int64, voter, target domain.Subject) (VoteKickResult, error) {
	if err := e.checkProtected(ctx, chatID, target); err != nil {
		return VoteKickResult{}, err
	}

	if err := e.store.AddVoteKick(ctx, voter.ID, target.ID); err != nil {
		return VoteKickResult{}, fmt.Errorf("add votekick: %w", err)
	}

	tally, err := e.store.GetVoteKicks(ctx, target.ID)
	if err != nil {
		return VoteKickResult{}, fmt.Errorf("get votekicks: %w", err)
	}

	res := VoteKickResult{Tally: tally, ThresholdReached: tally >= domain.VoteKickThreshold}
	if res.ThresholdReached {
		slog.InfoContext(ctx, "Votekick threshold reached", "chat_id", chatID, "target_id", target.ID, "tally", tally)
	}
	return res, nil
}

func (e *Engine) checkProtected(ctx context.Context, chatID int64, target domain.Subject) error {
	if e.IsProtectedIdentity(target) {
		return &domain.ProtectedError{Cause: domain.ProtectedIdentity}
	}

	trusted, err := e.store.GetTrusted(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("get trusted: %w", err)
	}
	if trusted {
		return &domain.ProtectedError{Cause: domain.ProtectedTrusted}
	}

	isAdmin, err := e.IsAdmin(ctx, chatID, target.ID)
	if err != nil {
		return err
	}
	if isAdmin {
		return &domain.ProtectedError{Cause: domain.ProtectedAdmin}
	}
	return nil
}

// IsProtectedIdentity reports whether target is configured as never kickable.
func (e *Engine) IsProtectedIdentity(target domain.Subject) bool {
	if _, ok := e.protectedIDs[target.ID]; ok {
		return true
	}
	if name := target.NormalizedUsername(); name != "" {
		if _, ok := e.protectedNames[name]; ok {
			return true
		}
	}
	return false
}

// IsAdmin consults the admin checker, wrapping failures with domain.ErrAdminLookup.
func (e *Engine) IsAdmin(ctx context.Context, chatID int64, userID domain.UserID) (bool, error) {
	if e.admins == nil {
		return false, nil
	}
	ok, err := e.admins.IsAdmin(ctx, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrAdminLookup, err)
	}
	return ok, nil
}
