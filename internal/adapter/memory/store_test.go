package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatwarden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Defaults(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	warns, err := s.GetWarns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, warns)

	trusted, err := s.GetTrusted(ctx, 1)
	require.NoError(t, err)
	assert.False(t, trusted)

	votes, err := s.GetVoteKicks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, votes)

	rec, err := s.GetRecord(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.UserRecord{UserID: 1, VoteKickVoters: []domain.UserID{}}, *rec)
}

func TestStore_AddWarnsClampsAtZero(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	change, err := s.AddWarns(ctx, 5, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.WarnChange{Previous: 0, Current: 1}, change)

	change, err = s.AddWarns(ctx, 5, -3)
	require.NoError(t, err)
	assert.Equal(t, domain.WarnChange{Previous: 1, Current: 0}, change)

	change, err = s.AddWarns(ctx, 5, -1)
	require.NoError(t, err)
	assert.False(t, change.Changed())
}

func TestStore_AddVoteKickIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStore(clock)
	ctx := context.Background()

	require.NoError(t, s.AddVoteKick(ctx, 10, 99))
	clock.Advance(time.Second)
	require.NoError(t, s.AddVoteKick(ctx, 11, 99))
	require.NoError(t, s.AddVoteKick(ctx, 10, 99))

	votes, err := s.GetVoteKicks(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 2, votes)

	rec, err := s.GetRecord(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{10, 11}, rec.VoteKickVoters)
}

func TestStore_ConcurrentWarns(t *testing.T) {
	s := NewStore(clockwork.NewRealClock())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddWarns(ctx, 3, 1)
		}()
	}
	wg.Wait()

	warns, err := s.GetWarns(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 100, warns)
}

func TestStore_TrustIndependentOfWarns(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, s.SetWarns(ctx, 8, 4))
	require.NoError(t, s.SetTrusted(ctx, 8, true))
	require.NoError(t, s.SetWarns(ctx, 8, 0))

	trusted, err := s.GetTrusted(ctx, 8)
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestStore_ConcurrentVoteKicksCountDistinctVoters(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	const voters = 10
	var wg sync.WaitGroup
	for i := range voters * 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddVoteKick(ctx, domain.UserID(100+i%voters), 7))
		}()
	}
	wg.Wait()

	tally, err := s.GetVoteKicks(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, voters, tally)

	rec, err := s.GetRecord(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, rec.VoteKickVoters, voters)
}

func TestStore_SwapTrustedReturnsPrevious(t *testing.T) {
	s := NewStore(clockwork.NewFakeClock())
	ctx := context.Background()

	prev, err := s.SwapTrusted(ctx, 4, true)
	require.NoError(t, err)
	assert.False(t, prev)

	prev, err = s.SwapTrusted(ctx, 4, true)
	require.NoError(t, err)
	assert.True(t, prev)

	prev, err = s.SwapTrusted(ctx, 4, false)
	require.NoError(t, err)
	assert.True(t, prev)
}
