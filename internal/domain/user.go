package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UserID identifies a chat participant. Channels posting as a user share the same id space.
type UserID int64

func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return UserID(v), nil
}

// Subject is an identity as seen by the chat platform.
type Subject struct {
	ID        UserID `json:"id"`
	Username  string `json:"username,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
	IsChannel bool   `json:"is_channel,omitempty"`
}

// NormalizedUsername lowercases the username and strips a leading "@".
func (s Subject) NormalizedUsername() string {
	return NormalizeUsername(s.Username)
}

func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

// UserRecord is the persisted moderation state of one identity.
// Absent records read as the zero value.
type UserRecord struct {
	UserID         UserID   `json:"user_id"`
	Warns          int      `json:"warns"`
	Trusted        bool     `json:"trusted"`
	VoteKickVoters []UserID `json:"votekick_voters"`
}

func (r UserRecord) VoteKickTally() int {
	return len(r.VoteKickVoters)
}

// WarnChange reports a warn count before and after an atomic adjustment.
type WarnChange struct {
	Previous int
	Current  int
}

func (c WarnChange) Changed() bool {
	return c.Previous != c.Current
}

// Ballot is one recorded vote-kick against a target.
type Ballot struct {
	VoterID UserID    `json:"voter_id"`
	CastAt  time.Time `json:"cast_at"`
}
