package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/chatwarden/internal/domain"
)

const (
	userKeyPrefix     = "user:"
	voteKickKeyPrefix = "votekick:"

	fieldWarns   = "warns"
	fieldTrusted = "trusted"
)

func userKey(id domain.UserID) string     { return userKeyPrefix + id.String() }
func voteKickKey(id domain.UserID) string { return voteKickKeyPrefix + id.String() }

// RecordStore keeps moderation records in Redis hashes:
// user:{id} holds warns and trusted, votekick:{target} maps voter id to cast time in ms.
type RecordStore struct {
	rdb   goredis.UniversalClient
	clock clockwork.Clock
}

var _ domain.RecordStore = (*RecordStore)(nil)

func NewRecordStore(rdb goredis.UniversalClient, clock clockwork.Clock) *RecordStore {
	return &RecordStore{rdb: rdb, clock: clock}
}

func (s *RecordStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RecordStore) GetWarns(ctx context.Context, userID domain.UserID) (int, error) {
	warns, err := s.rdb.HGet(ctx, userKey(userID), fieldWarns).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.NewStorageError("get_warns", userID, err)
	}
	return warns, nil
}

func (s *RecordStore) SetWarns(ctx context.Context, userID domain.UserID, warns int) error {
	if err := s.rdb.HSet(ctx, userKey(userID), fieldWarns, max(warns, 0)).Err(); err != nil {
		return domain.NewStorageError("set_warns", userID, err)
	}
	return nil
}

func (s *RecordStore) AddWarns(ctx context.Context, userID domain.UserID, delta int) (domain.WarnChange, error) {
	res, err := adjustWarnsScript.Run(ctx, s.rdb, []string{userKey(userID)}, delta).Int64Slice()
	if err != nil {
		return domain.WarnChange{}, domain.NewStorageError("add_warns", userID, err)
	}
	if len(res) != 2 {
		return domain.WarnChange{}, domain.NewStorageError("add_warns", userID,
			fmt.Errorf("unexpected script reply of length %d", len(res)))
	}
	return domain.WarnChange{Previous: int(res[0]), Current: int(res[1])}, nil
}

func (s *RecordStore) GetTrusted(ctx context.Context, userID domain.UserID) (bool, error) {
	trusted, err := s.rdb.HGet(ctx, userKey(userID), fieldTrusted).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, domain.NewStorageError("get_trusted", userID, err)
	}
	return trusted == "1", nil
}

func (s *RecordStore) SetTrusted(ctx context.Context, userID domain.UserID, trusted bool) error {
	value := "0"
	if trusted {
		value = "1"
	}
	if err := s.rdb.HSet(ctx, userKey(userID), fieldTrusted, value).Err(); err != nil {
		return domain.NewStorageError("set_trusted", userID, err)
	}
	return nil
}

func (s *RecordStore) SwapTrusted(ctx context.Context, userID domain.UserID, trusted bool) (bool, error) {
	value := "0"
	if trusted {
		value = "1"
	}
	prev, err := swapTrustedScript.Run(ctx, s.rdb, []string{userKey(userID)}, value).Int()
	if err != nil {
		return false, domain.NewStorageError("swap_trusted", userID, err)
	}
	return prev == 1, nil
}

// AddVoteKick records the ballot with HSETNX so a repeated vote keeps its original cast time.
func (s *RecordStore) AddVoteKick(ctx context.Context, voterID, targetID domain.UserID) error {
	castAt := s.clock.Now().UnixMilli()
	if err := s.rdb.HSetNX(ctx, voteKickKey(targetID), voterID.String(), castAt).Err(); err != nil {
		return domain.NewStorageError("add_votekick", targetID, err)
	}
	return nil
}

func (s *RecordStore) GetVoteKicks(ctx context.Context, targetID domain.UserID) (int, error) {
	n, err := s.rdb.HLen(ctx, voteKickKey(targetID)).Result()
	if err != nil {
		return 0, domain.NewStorageError("get_votekicks", targetID, err)
	}
	return int(n), nil
}

func (s *RecordStore) GetRecord(ctx context.Context, userID domain.UserID) (*domain.UserRecord, error) {
	rec, _, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Ballots returns the vote-kicks cast against targetID, oldest first.
func (s *RecordStore) Ballots(ctx context.Context, targetID domain.UserID) ([]domain.Ballot, error) {
	raw, err := s.rdb.HGetAll(ctx, voteKickKey(targetID)).Result()
	if err != nil {
		return nil, domain.NewStorageError("get_ballots", targetID, err)
	}
	ballots, err := parseBallots(raw)
	if err != nil {
		return nil, domain.NewStorageError("get_ballots", targetID, err)
	}
	return ballots, nil
}

// Each calls fn for every user that has a record or has been vote-kicked.
// Iteration stops at the first error returned by fn.
func (s *RecordStore) Each(ctx context.Context, fn func(rec *domain.UserRecord, ballots []domain.Ballot) error) error {
	ids, err := s.scanUserIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		rec, ballots, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(rec, ballots); err != nil {
			return err
		}
	}
	return nil
}

func (s *RecordStore) load(ctx context.Context, userID domain.UserID) (*domain.UserRecord, []domain.Ballot, error) {
	pipe := s.rdb.Pipeline()
	userCmd := pipe.HGetAll(ctx, userKey(userID))
	votesCmd := pipe.HGetAll(ctx, voteKickKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, nil, domain.NewStorageError("get_record", userID, err)
	}

	rec := &domain.UserRecord{UserID: userID, VoteKickVoters: []domain.UserID{}}
	fields := userCmd.Val()
	if w, ok := fields[fieldWarns]; ok {
		warns, err := strconv.Atoi(w)
		if err != nil {
			return nil, nil, domain.NewStorageError("get_record", userID, fmt.Errorf("corrupt warns %q: %w", w, err))
		}
		rec.Warns = warns
	}
	rec.Trusted = fields[fieldTrusted] == "1"

	ballots, err := parseBallots(votesCmd.Val())
	if err != nil {
		return nil, nil, domain.NewStorageError("get_record", userID, err)
	}
	for _, b := range ballots {
		rec.VoteKickVoters = append(rec.VoteKickVoters, b.VoterID)
	}
	return rec, ballots, nil
}

func (s *RecordStore) scanUserIDs(ctx context.Context) ([]domain.UserID, error) {
	seen := make(map[domain.UserID]struct{})
	for _, prefix := range []string{userKeyPrefix, voteKickKeyPrefix} {
		iter := s.rdb.Scan(ctx, 0, prefix+"*", 500).Iterator()
		for iter.Next(ctx) {
			id, err := domain.ParseUserID(strings.TrimPrefix(iter.Val(), prefix))
			if err != nil {
				continue
			}
			seen[id] = struct{}{}
		}
		if err := iter.Err(); err != nil {
			return nil, domain.NewStorageError("scan", 0, err)
		}
	}

	ids := make([]domain.UserID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func parseBallots(raw map[string]string) ([]domain.Ballot, error) {
	ballots := make([]domain.Ballot, 0, len(raw))
	for voter, cast := range raw {
		voterID, err := domain.ParseUserID(voter)
		if err != nil {
			return nil, err
		}
		ms, err := strconv.ParseInt(cast, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt cast time for voter %s: %w", voter, err)
		}
		ballots = append(ballots, domain.Ballot{VoterID: voterID, CastAt: time.UnixMilli(ms).UTC()})
	}

	sort.Slice(ballots, func(i, j int) bool {
		if ballots[i].CastAt.Equal(ballots[j].CastAt) {
			return ballots[i].VoterID < ballots[j].VoterID
		}
		return ballots[i].CastAt.Before(ballots[j].CastAt)
	})
	return ballots, nil
}
