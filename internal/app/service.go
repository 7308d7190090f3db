package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatwarden/internal/authz"
	"github.com/pscheid92/chatwarden/internal/domain"
	"github.com/pscheid92/chatwarden/internal/moderation"
)

// Service is the only component that references the gate, the engine and the store together.
type Service struct {
	gate    *authz.Gate
	engine  *moderation.Engine
	store   domain.RecordStore
	events  domain.EventPublisher
	clock   clockwork.Clock
	handler Handler
}

// NewService creates the application service. events may be nil.
// mws wrap the dispatcher in the given order, the first being outermost.
func NewService(gate *authz.Gate, engine *moderation.Engine, store domain.RecordStore, events domain.EventPublisher, clock clockwork.Clock, mws ...Middleware) *Service {
	s := &Service{
		gate:   gate,
		engine: engine,
		store:  store,
		events: events,
		clock:  clock,
	}
	s.handler = Chain(s.dispatch, mws...)
	return s
}

// Handle runs req through the middleware chain. Rule rejections come back as a Result with
// OutcomeRejected and a nil error; errors are reserved for infrastructure failures.
func (s *Service) Handle(ctx context.Context, req *domain.Request) (*domain.Result, error) {
	kind, err := domain.ParseActionKind(string(req.Kind))
	if err != nil {
		return nil, err
	}
	req.Kind = kind
	return s.handler(ctx, req)
}

// GetRecord returns the full moderation record of a user.
func (s *Service) GetRecord(ctx context.Context, userID domain.UserID) (*domain.UserRecord, error) {
	rec, err := s.store.GetRecord(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *Service) dispatch(ctx context.Context, req *domain.Request) (*domain.Result, error) {
	target, err := s.gate.Authorize(ctx, req)
	if domain.IsRejection(err) {
		return domain.Rejected(req.Kind, err), nil
	}
	if err != nil {
		return nil, err
	}

	res, err := s.apply(ctx, req, target)
	if domain.IsRejection(err) {
		return domain.Rejected(req.Kind, err), nil
	}
	if err != nil {
		return nil, err
	}

	if res.Outcome == domain.OutcomeOK && req.Kind.Mutates() {
		s.publish(ctx, req, res)
	}
	return res, nil
}

func (s *Service) apply(ctx context.Context, req *domain.Request, target domain.Subject) (*domain.Result, error) {
	res := &domain.Result{Kind: req.Kind, Outcome: domain.OutcomeOK, Target: &target}

	switch req.Kind {
	case domain.ActionWarn:
		warns, err := s.engine.Warn(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		res.WarnCount = &warns

	case domain.ActionUnwarn:
		out, err := s.engine.Unwarn(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		res.WarnCount = &out.Warns
		if !out.Changed {
			res.Outcome = domain.OutcomeNoOp
			res.Reason = domain.ReasonNoWarns
		}

	case domain.ActionClearWarns:
		if err := s.engine.ClearWarns(ctx, target.ID); err != nil {
			return nil, err
		}
		zero := 0
		res.WarnCount = &zero

	case domain.ActionWarns:
		warns, err := s.engine.GetWarns(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		res.WarnCount = &warns

	case domain.ActionTrust, domain.ActionUntrust:
		return s.applyTrust(ctx, req, target, res)

	case domain.ActionVoteKick:
		out, err := s.engine.VoteKick(ctx, req.ChatID, req.Caller, target)
		if err != nil {
			return nil, err
		}
		res.VoteKickTally = &out.Tally
		res.ThresholdReached = &out.ThresholdReached

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAction, req.Kind)
	}

	return res, nil
}

func (s *Service) applyTrust(ctx context.Context, req *domain.Request, target domain.Subject, res *domain.Result) (*domain.Result, error) {
	var (
		changed bool
		err     error
	)
	if req.Kind == domain.ActionTrust {
		changed, err = s.engine.Trust(ctx, target.ID)
	} else {
		changed, err = s.engine.Untrust(ctx, target.ID)
	}
	if err != nil {
		return nil, err
	}

	if !changed {
		res.Outcome = domain.OutcomeNoOp
		res.Reason = domain.ReasonAlreadyTrusted
		if req.Kind == domain.ActionUntrust {
			res.Reason = domain.ReasonNotTrusted
		}
		return res, nil
	}

	// The change is already stored, so a failed lookup only loses the admin hint.
	isAdmin, err := s.engine.IsAdmin(ctx, req.ChatID, target.ID)
	if err != nil {
		slog.WarnContext(ctx, "Admin lookup for trust target failed", "target_id", target.ID, "error", err)
	}
	res.TargetIsAdmin = isAdmin
	return res, nil
}

func (s *Service) publish(ctx context.Context, req *domain.Request, res *domain.Result) {
	if s.events == nil {
		return
	}

	event := domain.ModerationEvent{
		ID:            uuid.New(),
		Kind:          req.Kind,
		ChatID:        req.ChatID,
		ActorID:       req.Caller.ID,
		WarnCount:     res.WarnCount,
		VoteKickTally: res.VoteKickTally,
		OccurredAt:    s.clock.Now().UTC(),
	}
	if res.Target != nil {
		event.Target = *res.Target
	}
	if res.ThresholdReached != nil {
		event.ThresholdReached = *res.ThresholdReached
	}

	if err := s.events.PublishModerationEvent(ctx, event); err != nil {
		slog.WarnContext(ctx, "Failed to publish moderation event", "kind", req.Kind, "event_id", event.ID, "error", err)
	}
}

// IsStorageFailure reports whether err came from the record store.
func IsStorageFailure(err error) bool {
	var se *domain.StorageError
	return errors.As(err, &se)
}
