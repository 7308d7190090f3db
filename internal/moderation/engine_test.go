package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatwarden/internal/adapter/memory"
	"github.com/pscheid92/chatwarden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChatID int64 = -100123

// --- Mocks ---

type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) AddVoteKick(context.Context, domain.UserID, domain.UserID) error {
	return domain.NewStorageError("add_votekick", 0, f.err)
}

func (f *failingStore) AddWarns(_ context.Context, id domain.UserID, _ int) (domain.WarnChange, error) {
	return domain.WarnChange{}, domain.NewStorageError("add_warns", id, f.err)
}

func (f *failingStore) SwapTrusted(_ context.Context, id domain.UserID, _ bool) (bool, error) {
	return false, domain.NewStorageError("swap_trusted", id, f.err)
}

func adminsOf(ids ...domain.UserID) domain.AdminChecker {
	set := make(map[domain.UserID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return domain.AdminCheckerFunc(func(_ context.Context, _ int64, id domain.UserID) (bool, error) {
		return set[id], nil
	})
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore(clockwork.NewFakeClock())
	return NewEngine(store, adminsOf(1), opts...), store
}

func user(id domain.UserID) domain.Subject {
	return domain.Subject{ID: id, Username: "user"}
}

// --- Warns ---

func TestWarn_NoCeiling(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := e.Warn(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestUnwarn_ClampsAtZero(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, store.SetWarns(ctx, 42, 2))

	res, err := e.Unwarn(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, UnwarnResult{Warns: 1, Changed: true}, res)

	res, err = e.Unwarn(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Warns)
	assert.True(t, res.Changed)
	assert.True(t, res.Zero())

	res, err = e.Unwarn(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Warns)
	assert.False(t, res.Changed)
}

func TestClearWarns_ThenGetIsZero(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for range 5 {
		_, err := e.Warn(ctx, 7)
		require.NoError(t, err)
	}
	require.NoError(t, e.ClearWarns(ctx, 7))

	warns, err := e.GetWarns(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, warns)
}

func TestWarns_NeverNegativeUnderInterleaving(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%3 == 0 {
				_, _ = e.Warn(ctx, 9)
			} else {
				_, _ = e.Unwarn(ctx, 9)
			}
		}()
	}
	wg.Wait()

	warns, err := e.GetWarns(ctx, 9)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, warns, 0)
}

func TestWarn_StorageErrorPropagates(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(clockwork.NewFakeClock()), err: errors.New("disk full")}
	e := NewEngine(store, nil)

	_, err := e.Warn(context.Background(), 1)

	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "add_warns", se.Op)
}

// --- Trust ---

func TestTrust_Idempotent(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	changed, err := e.Trust(ctx, 5)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = e.Trust(ctx, 5)
	require.NoError(t, err)
	assert.False(t, changed, "second trust should report already trusted")

	trusted, err := store.GetTrusted(ctx, 5)
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestUntrust_NotTrusted(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	changed, err := e.Untrust(ctx, 5)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = e.Trust(ctx, 5)
	require.NoError(t, err)
	changed, err = e.Untrust(ctx, 5)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestTrust_ConcurrentCallersReportOneChange(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var mu sync.Mutex
	var changes int
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := e.Trust(ctx, 6)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changes)
}

func TestTrust_StorageErrorPropagates(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(clockwork.NewFakeClock()), err: errors.New("disk full")}
	e := NewEngine(store, nil)

	_, err := e.Trust(context.Background(), 1)

	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "swap_trusted", se.Op)
}

// --- Vote-kick ---

func TestVoteKick_ThirdDistinctVoterReachesThreshold(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	target := user(99)

	res, err := e.VoteKick(ctx, testChatID, user(10), target)
	require.NoError(t, err)
	assert.Equal(t, VoteKickResult{Tally: 1}, res)

	res, err = e.VoteKick(ctx, testChatID, user(11), target)
	require.NoError(t, err)
	assert.Equal(t, VoteKickResult{Tally: 2}, res)

	res, err = e.VoteKick(ctx, testChatID, user(12), target)
	require.NoError(t, err)
	assert.Equal(t, VoteKickResult{Tally: 3, ThresholdReached: true}, res)
}

func TestVoteKick_DuplicateVoterCountsOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for range 3 {
		res, err := e.VoteKick(ctx, testChatID, user(10), user(99))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Tally)
		assert.False(t, res.ThresholdReached)
	}
}

func TestVoteKick_ConcurrentVotersReachThreshold(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	target := user(99)

	const voters = 5
	var mu sync.Mutex
	var results []VoteKickResult
	var wg sync.WaitGroup
	for i := range voters * 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.VoteKick(ctx, testChatID, user(domain.UserID(10+i%voters)), target)
			assert.NoError(t, err)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}()
	}
	wg.Wait()

	reached := 0
	for _, res := range results {
		assert.LessOrEqual(t, res.Tally, voters)
		assert.Equal(t, res.Tally >= domain.VoteKickThreshold, res.ThresholdReached)
		if res.ThresholdReached {
			reached++
		}
	}
	assert.Positive(t, reached)

	tally, err := store.GetVoteKicks(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, voters, tally)
}

func TestVoteKick_ChannelVoter(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()
	channel := domain.Subject{ID: -1001, Username: "somechannel", IsChannel: true}

	_, err := e.VoteKick(ctx, testChatID, channel, user(99))
	require.NoError(t, err)

	rec, err := store.GetRecord(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{-1001}, rec.VoteKickVoters)
}

func TestVoteKick_ProtectedTargets(t *testing.T) {
	tests := []struct {
		name   string
		target domain.Subject
		setup  func(t *testing.T, s *memory.Store)
		cause  domain.ProtectionCause
	}{
		{
			name:   "trusted target",
			target: user(50),
			setup: func(t *testing.T, s *memory.Store) {
				require.NoError(t, s.SetTrusted(context.Background(), 50, true))
			},
			cause: domain.ProtectedTrusted,
		},
		{
			name:   "admin target",
			target: user(1),
			cause:  domain.ProtectedAdmin,
		},
		{
			name:   "protected id",
			target: user(777),
			cause:  domain.ProtectedIdentity,
		},
		{
			name:   "protected username",
			target: domain.Subject{ID: 888, Username: "Dev_Meme", IsChannel: true},
			cause:  domain.ProtectedIdentity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newTestEngine(t, WithProtectedIDs(777), WithProtectedUsernames("@dev_meme"))
			if tt.setup != nil {
				tt.setup(t, store)
			}

			_, err := e.VoteKick(context.Background(), testChatID, user(10), tt.target)

			require.ErrorIs(t, err, domain.ErrTargetProtected)
			var pe *domain.ProtectedError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.cause, pe.Cause)

			votes, err := store.GetVoteKicks(context.Background(), tt.target.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, votes, "protected target must not accumulate votes")
		})
	}
}

func TestVoteKick_AdminLookupFailure(t *testing.T) {
	store := memory.NewStore(clockwork.NewFakeClock())
	failing := domain.AdminCheckerFunc(func(context.Context, int64, domain.UserID) (bool, error) {
		return false, errors.New("timeout")
	})
	e := NewEngine(store, failing)

	_, err := e.VoteKick(context.Background(), testChatID, user(10), user(99))

	assert.ErrorIs(t, err, domain.ErrAdminLookup)
	assert.False(t, domain.IsRejection(err))
}

func TestVoteKick_StorageError(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(clockwork.NewFakeClock()), err: errors.New("connection reset")}
	e := NewEngine(store, nil)

	_, err := e.VoteKick(context.Background(), testChatID, user(10), user(99))

	var se *domain.StorageError
	assert.ErrorAs(t, err, &se)
}

func TestClearAndUntrust_KeepVoteKickHistory(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	_, err := e.VoteKick(ctx, testChatID, user(10), user(99))
	require.NoError(t, err)
	_, err = e.Warn(ctx, 99)
	require.NoError(t, err)

	require.NoError(t, e.ClearWarns(ctx, 99))
	_, err = e.Untrust(ctx, 99)
	require.NoError(t, err)

	votes, err := store.GetVoteKicks(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 1, votes)
}
