// Package memory provides an in-process RecordStore for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatwarden/internal/domain"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.UserID]*record
	clock   clockwork.Clock
}

type record struct {
	mu      sync.Mutex
	warns   int
	trusted bool
	voters  map[domain.UserID]time.Time
}

var _ domain.RecordStore = (*Store)(nil)

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		records: make(map[domain.UserID]*record),
		clock:   clock,
	}
}

func (s *Store) lookup(userID domain.UserID) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[userID]
}

func (s *Store) getOrCreate(userID domain.UserID) *record {
	if r := s.lookup(userID); r != nil {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[userID]
	if !ok {
		r = &record{voters: make(map[domain.UserID]time.Time)}
		s.records[userID] = r
	}
	return r
}

func (s *Store) GetWarns(_ context.Context, userID domain.UserID) (int, error) {
	r := s.lookup(userID)
	if r == nil {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warns, nil
}

func (s *Store) SetWarns(_ context.Context, userID domain.UserID, warns int) error {
	r := s.getOrCreate(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = max(warns, 0)
	return nil
}

func (s *Store) AddWarns(_ context.Context, userID domain.UserID, delta int) (domain.WarnChange, error) {
	r := s.getOrCreate(userID)
	r.mu.Lock()
	defer r.mu.Unlock()

	change := domain.WarnChange{Previous: r.warns}
	r.warns = max(r.warns+delta, 0)
	change.Current = r.warns
	return change, nil
}

func (s *Store) GetTrusted(_ context.Context, userID domain.UserID) (bool, error) {
	r := s.lookup(userID)
	if r == nil {
		return false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trusted, nil
}

func (s *Store) SetTrusted(_ context.Context, userID domain.UserID, trusted bool) error {
	r := s.getOrCreate(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trusted = trusted
	return nil
}

func (s *Store) SwapTrusted(_ context.Context, userID domain.UserID, trusted bool) (bool, error) {
	r := s.getOrCreate(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.trusted
	r.trusted = trusted
	return previous, nil
}

func (s *Store) AddVoteKick(_ context.Context, voterID, targetID domain.UserID) error {
	r := s.getOrCreate(targetID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.voters[voterID]; !ok {
		r.voters[voterID] = s.clock.Now()
	}
	return nil
}

func (s *Store) GetVoteKicks(_ context.Context, targetID domain.UserID) (int, error) {
	r := s.lookup(targetID)
	if r == nil {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.voters), nil
}

// GetRecord returns voters ordered by the time their vote was cast.
func (s *Store) GetRecord(_ context.Context, userID domain.UserID) (*domain.UserRecord, error) {
	rec := &domain.UserRecord{UserID: userID, VoteKickVoters: []domain.UserID{}}

	r := s.lookup(userID)
	if r == nil {
		return rec, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec.Warns = r.warns
	rec.Trusted = r.trusted
	for voter := range r.voters {
		rec.VoteKickVoters = append(rec.VoteKickVoters, voter)
	}
	sort.Slice(rec.VoteKickVoters, func(i, j int) bool {
		a, b := r.voters[rec.VoteKickVoters[i]], r.voters[rec.VoteKickVoters[j]]
		if a.Equal(b) {
			return rec.VoteKickVoters[i] < rec.VoteKickVoters[j]
		}
		return a.Before(b)
	})
	return rec, nil
}

// Ping always succeeds; it lets the memory store serve as a readiness check.
func (s *Store) Ping(context.Context) error {
	return nil
}
