// Package authz decides who may act on whom.
//
// The gate checks caller privilege and resolves the target of a request. Whether a target may be
// vote-kicked at all is decided by the moderation engine.
package authz

import (
	"context"
	"fmt"

	"github.com/pscheid92/chatwarden/internal/domain"
)

// TrustReader is the subset of the record store the gate needs.
type TrustReader interface {
	GetTrusted(ctx context.Context, userID domain.UserID) (bool, error)
}

type Gate struct {
	admins domain.AdminChecker
	trust  TrustReader
}

// NewGate creates a gate. admins and trust are only consulted when a request leaves the
// corresponding privilege flag unset.
func NewGate(admins domain.AdminChecker, trust TrustReader) *Gate {
	return &Gate{admins: admins, trust: trust}
}

// Authorize returns the resolved target of req or a rejection error.
func (g *Gate) Authorize(ctx context.Context, req *domain.Request) (domain.Subject, error) {
	switch req.Kind.Class() {
	case domain.ClassAdminToUser:
		return g.authorizeAdminToUser(ctx, req)
	case domain.ClassVoteKick:
		return g.authorizeVoteKick(ctx, req)
	case domain.ClassSelfQuery:
		return resolveSelfQuery(req)
	default:
		return domain.Subject{}, fmt.Errorf("%w: %q", domain.ErrUnknownAction, req.Kind)
	}
}

func (g *Gate) authorizeAdminToUser(ctx context.Context, req *domain.Request) (domain.Subject, error) {
	isAdmin, err := g.callerIsAdmin(ctx, req)
	if err != nil {
		return domain.Subject{}, err
	}
	if !isAdmin {
		return domain.Subject{}, domain.ErrNotAuthorized
	}
	if req.Target == nil {
		return domain.Subject{}, domain.ErrNoTarget
	}
	if req.Target.IsBot {
		return domain.Subject{}, domain.ErrTargetIsBot
	}
	return *req.Target, nil
}

func (g *Gate) authorizeVoteKick(ctx context.Context, req *domain.Request) (domain.Subject, error) {
	if req.Target == nil {
		return domain.Subject{}, domain.ErrNoTarget
	}

	trusted, err := g.callerIsTrusted(ctx, req)
	if err != nil {
		return domain.Subject{}, err
	}
	if trusted {
		return *req.Target, nil
	}

	isAdmin, err := g.callerIsAdmin(ctx, req)
	if err != nil {
		return domain.Subject{}, err
	}
	if !isAdmin {
		return domain.Subject{}, domain.ErrNotAuthorized
	}
	return *req.Target, nil
}

// resolveSelfQuery defaults to the caller when no target is given or the target is the caller.
func resolveSelfQuery(req *domain.Request) (domain.Subject, error) {
	if req.Target == nil || req.Target.ID == req.Caller.ID {
		return req.Caller, nil
	}
	if req.Target.IsBot {
		return domain.Subject{}, domain.ErrTargetIsBot
	}
	return *req.Target, nil
}

func (g *Gate) callerIsAdmin(ctx context.Context, req *domain.Request) (bool, error) {
	if req.CallerIsAdmin != nil {
		return *req.CallerIsAdmin, nil
	}
	if g.admins == nil {
		return false, nil
	}
	ok, err := g.admins.IsAdmin(ctx, req.ChatID, req.Caller.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrAdminLookup, err)
	}
	req.CallerIsAdmin = &ok
	return ok, nil
}

func (g *Gate) callerIsTrusted(ctx context.Context, req *domain.Request) (bool, error) {
	if req.CallerIsTrusted != nil {
		return *req.CallerIsTrusted, nil
	}
	if g.trust == nil {
		return false, nil
	}
	ok, err := g.trust.GetTrusted(ctx, req.Caller.ID)
	if err != nil {
		return false, fmt.Errorf("resolve caller trust: %w", err)
	}
	req.CallerIsTrusted = &ok
	return ok, nil
}
