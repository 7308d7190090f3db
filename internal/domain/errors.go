package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoTarget        = errors.New("no target: reply to a message to pick a user")
	ErrNotAuthorized   = errors.New("caller is not authorized for this action")
	ErrTargetProtected = errors.New("target is protected")
	ErrTargetIsBot     = errors.New("target is a bot")
	ErrWrongChat       = errors.New("chat is not moderated by this instance")
	ErrUnknownAction   = errors.New("unknown action")
	ErrAdminLookup     = errors.New("admin lookup failed")
)

// StorageError wraps an I/O failure of a RecordStore.
type StorageError struct {
	Op     string
	UserID UserID
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (user %d): %v", e.Op, e.UserID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func NewStorageError(op string, userID UserID, err error) error {
	return &StorageError{Op: op, UserID: userID, Err: err}
}

// ProtectionCause names why a vote-kick target is protected.
type ProtectionCause string

const (
	ProtectedIdentity ProtectionCause = "protected_identity"
	ProtectedTrusted  ProtectionCause = "trusted"
	ProtectedAdmin    ProtectionCause = "admin"
)

// ProtectedError is returned when a vote-kick target may not be voted against.
// It matches ErrTargetProtected with errors.Is.
type ProtectedError struct {
	Cause ProtectionCause
}

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrTargetProtected, e.Cause)
}

func (e *ProtectedError) Unwrap() error {
	return ErrTargetProtected
}

// IsRejection reports whether err is a benign rule rejection rather than a failure.
func IsRejection(err error) bool {
	_, ok := ReasonFor(err)
	return ok
}

// ReasonFor maps a rejection error to its Reason.
func ReasonFor(err error) (Reason, bool) {
	switch {
	case errors.Is(err, ErrNoTarget):
		return ReasonNoTarget, true
	case errors.Is(err, ErrNotAuthorized):
		return ReasonNotAuthorized, true
	case errors.Is(err, ErrTargetProtected):
		return ReasonTargetProtected, true
	case errors.Is(err, ErrTargetIsBot):
		return ReasonTargetIsBot, true
	case errors.Is(err, ErrWrongChat):
		return ReasonWrongChat, true
	default:
		return "", false
	}
}
