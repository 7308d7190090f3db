package adminlookup

import (
	"context"

	"github.com/pscheid92/chatwarden/internal/domain"
)

type anyChecker []domain.AdminChecker

// Any reports a user as admin as soon as one checker does.
// An error is returned only when no checker answered true and at least one failed.
func Any(checkers ...domain.AdminChecker) domain.AdminChecker {
	out := make(anyChecker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (a anyChecker) IsAdmin(ctx context.Context, chatID int64, userID domain.UserID) (bool, error) {
	var firstErr error
	for _, c := range a {
		ok, err := c.IsAdmin(ctx, chatID, userID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}
