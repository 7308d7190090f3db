package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ModerationEvent is emitted after an action changed persisted state.
// Consumers perform the ban when ThresholdReached is set.
type ModerationEvent struct {
	ID               uuid.UUID  `json:"id"`
	Kind             ActionKind `json:"kind"`
	ChatID           int64      `json:"chat_id"`
	ActorID          UserID     `json:"actor_id"`
	Target           Subject    `json:"target"`
	WarnCount        *int       `json:"warn_count,omitempty"`
	VoteKickTally    *int       `json:"votekick_tally,omitempty"`
	ThresholdReached bool       `json:"threshold_reached,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// EventPublisher publishes moderation events to infrastructure.
type EventPublisher interface {
	PublishModerationEvent(ctx context.Context, event ModerationEvent) error
}
