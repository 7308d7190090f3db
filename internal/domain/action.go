package domain

import (
	"errors"
	"fmt"
	"strings"
)

// VoteKickThreshold is the number of distinct voters that constitutes a ban.
const VoteKickThreshold = 3

type ActionKind string

const (
	ActionWarn       ActionKind = "warn"
	ActionUnwarn     ActionKind = "unwarn"
	ActionClearWarns ActionKind = "clearwarns"
	ActionWarns      ActionKind = "warns"
	ActionTrust      ActionKind = "trust"
	ActionUntrust    ActionKind = "untrust"
	ActionVoteKick   ActionKind = "votekick"
)

var actionAliases = map[string]ActionKind{
	"warn":       ActionWarn,
	"unwarn":     ActionUnwarn,
	"clearwarns": ActionClearWarns,
	"warns":      ActionWarns,
	"trust":      ActionTrust,
	"untrust":    ActionUntrust,
	"votekick":   ActionVoteKick,
	"kickvote":   ActionVoteKick,
}

// ParseActionKind accepts command names with or without a leading slash.
func ParseActionKind(s string) (ActionKind, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "/"))
	kind, ok := actionAliases[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return kind, nil
}

type ActionClass int

const (
	ClassAdminToUser ActionClass = iota
	ClassVoteKick
	ClassSelfQuery
)

func (k ActionKind) Class() ActionClass {
	switch k {
	case ActionVoteKick:
		return ClassVoteKick
	case ActionWarns:
		return ClassSelfQuery
	default:
		return ClassAdminToUser
	}
}

// Mutates reports whether the action can change persisted state.
func (k ActionKind) Mutates() bool {
	return k != ActionWarns
}

// Request is an inbound moderation command. Nil privilege flags are resolved
// by the service: trusted from the store, admin via the AdminChecker.
type Request struct {
	Kind            ActionKind `json:"kind"`
	ChatID          int64      `json:"chat_id"`
	Caller          Subject    `json:"caller"`
	CallerIsAdmin   *bool      `json:"caller_is_admin,omitempty"`
	CallerIsTrusted *bool      `json:"caller_is_trusted,omitempty"`
	Target          *Subject   `json:"target,omitempty"`
}

type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRejected Outcome = "rejected"
	OutcomeNoOp     Outcome = "noop"
)

type Reason string

const (
	ReasonNoTarget        Reason = "no_target"
	ReasonNotAuthorized   Reason = "not_authorized"
	ReasonTargetProtected Reason = "target_protected"
	ReasonTargetIsBot     Reason = "target_is_bot"
	ReasonWrongChat       Reason = "wrong_chat"
	ReasonAlreadyTrusted  Reason = "already_trusted"
	ReasonNotTrusted      Reason = "not_trusted"
	ReasonNoWarns         Reason = "no_warns"
)

// Result is the structured answer handed back to the chat platform layer.
type Result struct {
	Kind             ActionKind      `json:"kind"`
	Outcome          Outcome         `json:"outcome"`
	Target           *Subject        `json:"target,omitempty"`
	WarnCount        *int            `json:"warn_count,omitempty"`
	VoteKickTally    *int            `json:"votekick_tally,omitempty"`
	ThresholdReached *bool           `json:"threshold_reached,omitempty"`
	TargetIsAdmin    bool            `json:"target_is_admin,omitempty"`
	Reason           Reason          `json:"reason,omitempty"`
	Protection       ProtectionCause `json:"protection,omitempty"`
}

// Rejected builds a Result for a benign rule rejection.
func Rejected(kind ActionKind, err error) *Result {
	res := &Result{Kind: kind, Outcome: OutcomeRejected}
	res.Reason, _ = ReasonFor(err)

	var pe *ProtectedError
	if errors.As(err, &pe) {
		res.Protection = pe.Cause
	}
	return res
}
