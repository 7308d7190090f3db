package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/chatwarden/internal/domain"
)

// RecordStore persists moderation records in the user_records and votekicks tables.
type RecordStore struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

var _ domain.RecordStore = (*RecordStore)(nil)

func NewRecordStore(pool *pgxpool.Pool, clock clockwork.Clock) *RecordStore {
	return &RecordStore{pool: pool, clock: clock}
}

func (s *RecordStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *RecordStore) GetWarns(ctx context.Context, userID domain.UserID) (int, error) {
	var warns int
	err := s.pool.QueryRow(ctx, `SELECT warns FROM user_records WHERE user_id = $1`, int64(userID)).Scan(&warns)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.NewStorageError("get_warns", userID, err)
	}
	return warns, nil
}

func (s *RecordStore) SetWarns(ctx context.Context, userID domain.UserID, warns int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_records (user_id, warns, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET warns = EXCLUDED.warns, updated_at = EXCLUDED.updated_at`,
		int64(userID), max(warns, 0), s.clock.Now().UTC())
	if err != nil {
		return domain.NewStorageError("set_warns", userID, err)
	}
	return nil
}

// AddWarns locks the row for the duration of the adjustment so the previous value is exact.
func (s *RecordStore) AddWarns(ctx context.Context, userID domain.UserID, delta int) (domain.WarnChange, error) {
	var change domain.WarnChange
	now := s.clock.Now().UTC()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_records (user_id, created_at, updated_at) VALUES ($1, $2, $2)
			ON CONFLICT (user_id) DO NOTHING`, int64(userID), now); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `SELECT warns FROM user_records WHERE user_id = $1 FOR UPDATE`,
			int64(userID)).Scan(&change.Previous); err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			UPDATE user_records SET warns = GREATEST(warns + $2, 0), updated_at = $3
			WHERE user_id = $1
			RETURNING warns`, int64(userID), delta, now).Scan(&change.Current)
	})
	if err != nil {
		return domain.WarnChange{}, domain.NewStorageError("add_warns", userID, err)
	}
	return change, nil
}

func (s *RecordStore) GetTrusted(ctx context.Context, userID domain.UserID) (bool, error) {
	var trusted bool
	err := s.pool.QueryRow(ctx, `SELECT trusted FROM user_records WHERE user_id = $1`, int64(userID)).Scan(&trusted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.NewStorageError("get_trusted", userID, err)
	}
	return trusted, nil
}

func (s *RecordStore) SetTrusted(ctx context.Context, userID domain.UserID, trusted bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_records (user_id, trusted, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET trusted = EXCLUDED.trusted, updated_at = EXCLUDED.updated_at`,
		int64(userID), trusted, s.clock.Now().UTC())
	if err != nil {
		return domain.NewStorageError("set_trusted", userID, err)
	}
	return nil
}

// SwapTrusted holds the row lock between reading and writing so concurrent callers see distinct previous values.
func (s *RecordStore) SwapTrusted(ctx context.Context, userID domain.UserID, trusted bool) (bool, error) {
	var previous bool
	now := s.clock.Now().UTC()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_records (user_id, created_at, updated_at) VALUES ($1, $2, $2)
			ON CONFLICT (user_id) DO NOTHING`, int64(userID), now); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `SELECT trusted FROM user_records WHERE user_id = $1 FOR UPDATE`,
			int64(userID)).Scan(&previous); err != nil {
			return err
		}
		if previous == trusted {
			return nil
		}

		_, err := tx.Exec(ctx, `UPDATE user_records SET trusted = $2, updated_at = $3 WHERE user_id = $1`,
			int64(userID), trusted, now)
		return err
	})
	if err != nil {
		return false, domain.NewStorageError("swap_trusted", userID, err)
	}
	return previous, nil
}

func (s *RecordStore) AddVoteKick(ctx context.Context, voterID, targetID domain.UserID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO votekicks (target_id, voter_id, cast_at) VALUES ($1, $2, $3)
		ON CONFLICT (target_id, voter_id) DO NOTHING`,
		int64(targetID), int64(voterID), s.clock.Now().UTC())
	if err != nil {
		return domain.NewStorageError("add_votekick", targetID, err)
	}
	return nil
}

func (s *RecordStore) GetVoteKicks(ctx context.Context, targetID domain.UserID) (int, error) {
	var tally int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM votekicks WHERE target_id = $1`, int64(targetID)).Scan(&tally)
	if err != nil {
		return 0, domain.NewStorageError("get_votekicks", targetID, err)
	}
	return tally, nil
}

func (s *RecordStore) GetRecord(ctx context.Context, userID domain.UserID) (*domain.UserRecord, error) {
	rec := &domain.UserRecord{UserID: userID, VoteKickVoters: []domain.UserID{}}

	err := s.pool.QueryRow(ctx, `SELECT warns, trusted FROM user_records WHERE user_id = $1`,
		int64(userID)).Scan(&rec.Warns, &rec.Trusted)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewStorageError("get_record", userID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT voter_id FROM votekicks WHERE target_id = $1 ORDER BY cast_at, voter_id`, int64(userID))
	if err != nil {
		return nil, domain.NewStorageError("get_record", userID, err)
	}
	voters, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, domain.NewStorageError("get_record", userID, err)
	}
	for _, v := range voters {
		rec.VoteKickVoters = append(rec.VoteKickVoters, domain.UserID(v))
	}
	return rec, nil
}

// ImportResult tells what Import changed.
type ImportResult struct {
	RecordWritten bool
	BallotsAdded  int
}

// Import merges a record copied from another backend. Warn counts and trust are overwritten,
// so a default source record resets an existing row without creating a missing one.
// Ballots are added unless the voter already voted against the same target.
func (s *RecordStore) Import(ctx context.Context, rec domain.UserRecord, ballots []domain.Ballot) (ImportResult, error) {
	var res ImportResult
	now := s.clock.Now().UTC()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var tag pgconn.CommandTag
		var err error
		if rec.Warns > 0 || rec.Trusted {
			tag, err = tx.Exec(ctx, `
				INSERT INTO user_records (user_id, warns, trusted, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
				ON CONFLICT (user_id) DO UPDATE
				SET warns = EXCLUDED.warns, trusted = EXCLUDED.trusted, updated_at = EXCLUDED.updated_at
				WHERE user_records.warns <> EXCLUDED.warns OR user_records.trusted <> EXCLUDED.trusted`,
				int64(rec.UserID), max(rec.Warns, 0), rec.Trusted, now)
		} else {
			tag, err = tx.Exec(ctx, `
				UPDATE user_records SET warns = 0, trusted = false, updated_at = $2
				WHERE user_id = $1 AND (warns <> 0 OR trusted)`,
				int64(rec.UserID), now)
		}
		if err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		res.RecordWritten = tag.RowsAffected() > 0

		for _, b := range ballots {
			tag, err := tx.Exec(ctx, `
				INSERT INTO votekicks (target_id, voter_id, cast_at) VALUES ($1, $2, $3)
				ON CONFLICT (target_id, voter_id) DO NOTHING`,
				int64(rec.UserID), int64(b.VoterID), b.CastAt.UTC())
			if err != nil {
				return fmt.Errorf("insert ballot from %s: %w", b.VoterID, err)
			}
			res.BallotsAdded += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, domain.NewStorageError("import", rec.UserID, err)
	}
	return res, nil
}
