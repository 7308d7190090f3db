package domain

import "context"

// RecordStore persists per-user moderation records. Unknown users read as defaults.
// Read-modify-write operations are atomic per user; different users never block each other.
// Implementations return *StorageError on I/O failure.
type RecordStore interface {
	GetWarns(ctx context.Context, userID UserID) (int, error)
	SetWarns(ctx context.Context, userID UserID, warns int) error
	// AddWarns adjusts the warn count by delta, clamping at zero.
	AddWarns(ctx context.Context, userID UserID, delta int) (WarnChange, error)

	GetTrusted(ctx context.Context, userID UserID) (bool, error)
	SetTrusted(ctx context.Context, userID UserID, trusted bool) error
	// SwapTrusted sets trusted status and returns the value it replaced, atomically.
	SwapTrusted(ctx context.Context, userID UserID, trusted bool) (previous bool, err error)

	// AddVoteKick is idempotent per (voter, target).
	AddVoteKick(ctx context.Context, voterID, targetID UserID) error
	GetVoteKicks(ctx context.Context, targetID UserID) (int, error)

	GetRecord(ctx context.Context, userID UserID) (*UserRecord, error)
}

// AdminChecker answers whether a user is an administrator of a chat.
type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID int64, userID UserID) (bool, error)
}

type AdminCheckerFunc func(ctx context.Context, chatID int64, userID UserID) (bool, error)

func (f AdminCheckerFunc) IsAdmin(ctx context.Context, chatID int64, userID UserID) (bool, error) {
	return f(ctx, chatID, userID)
}
