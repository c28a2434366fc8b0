package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/artloop/progression-engine/internal/domain/achievement"
	"github.com/artloop/progression-engine/internal/domain/progression"
	"github.com/artloop/progression-engine/internal/domain/shared"
	"github.com/artloop/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STORE
// ══════════════════════════════════════════════════════════════════════════════

// UserStore implements progression.Store on PostgreSQL.
//
// The users row carries the version. Achievement rows never regress: an
// unlock timestamp, once written, is kept, and progress only grows. Stat
// counters are monotonic too, so a stale write cannot undo an increment.
//
// last_activity_date is a DATE. It is written as the calendar day of the
// stored time and read back as midnight of that day in loc.
type UserStore struct {
	conn *Connection
	loc  *time.Location
}

var _ progression.Store = (*UserStore)(nil)

// NewUserStore creates a store on conn that counts days in loc. A nil loc
// means UTC.
func NewUserStore(conn *Connection, loc *time.Location) *UserStore {
	if loc == nil {
		loc = time.UTC
	}
	return &UserStore{conn: conn, loc: loc}
}

const (
	selectUserSQL = `
		SELECT user_id, level, xp, streak_days, longest_streak, last_activity_date,
		       created_at, updated_at, version
		FROM users WHERE user_id = $1`

	selectStatesSQL = `
		SELECT achievement_id, progress, unlocked_at
		FROM achievement_states WHERE user_id = $1`

	selectStatsSQL = `SELECT name, value FROM user_stats WHERE user_id = $1`

	insertUserSQL = `
		INSERT INTO users (user_id, level, xp, streak_days, longest_streak,
		                   last_activity_date, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)`

	updateUserSQL = `
		UPDATE users SET level = $2, xp = $3, streak_days = $4, longest_streak = $5,
		       last_activity_date = $6, updated_at = $7, version = version + 1
		WHERE user_id = $1 AND version = $8`

	upsertStateSQL = `
		INSERT INTO achievement_states (user_id, achievement_id, progress, unlocked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, achievement_id) DO UPDATE SET
		    progress = GREATEST(achievement_states.progress, EXCLUDED.progress),
		    unlocked_at = COALESCE(achievement_states.unlocked_at, EXCLUDED.unlocked_at)`

	upsertStatSQL = `
		INSERT INTO user_stats (user_id, name, value) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET
		    value = GREATEST(user_stats.value, EXCLUDED.value)`

	incrementStatSQL = `
		INSERT INTO user_stats (user_id, name, value) VALUES ($1, $2, 1)
		ON CONFLICT (user_id, name) DO UPDATE SET value = user_stats.value + 1
		RETURNING value`
)

// GetUser implements progression.Store.
func (s *UserStore) GetUser(ctx context.Context, userID shared.UserID) (*progression.Record, error) {
	var rec *progression.Record
	err := s.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		var err error
		rec, err = s.load(ctx, tx, userID)
		return err
	})
	return rec, err
}

func (s *UserStore) load(ctx context.Context, q Querier, userID shared.UserID) (*progression.Record, error) {
	var (
		rec     progression.Record
		id      string
		level   int
		xp      int
		lastDay *time.Time
	)
	err := q.QueryRow(ctx, selectUserSQL, userID.String()).Scan(
		&id, &level, &xp, &rec.StreakDays, &rec.LongestStreak, &lastDay,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.Version,
	)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: select user %s: %w", userID, err)
	}
	rec.UserID = shared.UserID(id)
	rec.Level = shared.Level(level)
	rec.XP = shared.XP(xp)
	rec.LastActivityDate = activityDay(lastDay, s.loc)

	rec.Achievements = make(map[string]achievement.State)
	rows, err := q.Query(ctx, selectStatesSQL, userID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: select achievement states %s: %w", userID, err)
	}
	for rows.Next() {
		var st achievement.State
		if err := rows.Scan(&st.ID, &st.Progress, &st.UnlockedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan achievement state: %w", err)
		}
		rec.Achievements[st.ID] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rec.Stats = make(map[string]int)
	rows, err = q.Query(ctx, selectStatsSQL, userID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: select stats %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("postgres: scan stat: %w", err)
		}
		rec.Stats[name] = value
	}
	return &rec, rows.Err()
}

// CreateUser implements progression.Store.
func (s *UserStore) CreateUser(ctx context.Context, rec *progression.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertUserSQL,
			rec.UserID.String(), rec.Level.Int(), rec.XP.Int(), rec.StreakDays, rec.LongestStreak,
			rec.LastActivityDate, rec.CreatedAt, rec.UpdatedAt,
		)
		if IsUniqueViolation(err) {
			return shared.ErrUserExists
		}
		if err != nil {
			return fmt.Errorf("postgres: insert user %s: %w", rec.UserID, err)
		}
		return s.writeChildren(ctx, tx, rec)
	})
	if err != nil {
		return err
	}
	rec.Version = 1
	return nil
}

// UpdateUser implements progression.Store.
func (s *UserStore) UpdateUser(ctx context.Context, rec *progression.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateUserSQL,
			rec.UserID.String(), rec.Level.Int(), rec.XP.Int(), rec.StreakDays, rec.LongestStreak,
			rec.LastActivityDate, rec.UpdatedAt, rec.Version,
		)
		if err != nil {
			return fmt.Errorf("postgres: update user %s: %w", rec.UserID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, rec.UserID.String()).Scan(&exists); err != nil {
				return fmt.Errorf("postgres: check user %s: %w", rec.UserID, err)
			}
			if !exists {
				return shared.ErrUserNotFound
			}
			return shared.ErrStaleRecord
		}
		return s.writeChildren(ctx, tx, rec)
	})
	if err != nil {
		return err
	}
	rec.Version++
	return nil
}

func (s *UserStore) writeChildren(ctx context.Context, tx pgx.Tx, rec *progression.Record) error {
	batch := &pgx.Batch{}
	for _, st := range rec.Achievements {
		batch.Queue(upsertStateSQL, rec.UserID.String(), st.ID, st.Progress, st.UnlockedAt)
	}
	for name, value := range rec.Stats {
		batch.Queue(upsertStatSQL, rec.UserID.String(), name, value)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: write children of %s: %w", rec.UserID, err)
	}
	return nil
}

// IncrementStat implements progression.Store.
func (s *UserStore) IncrementStat(ctx context.Context, userID shared.UserID, name string) (int, error) {
	if name == "" {
		return 0, shared.Invalid("postgres", "IncrementStat", "stat name is required")
	}

	var value int
	err := s.conn.Pool().QueryRow(ctx, incrementStatSQL, userID.String(), name).Scan(&value)
	if IsForeignKeyViolation(err) {
		return 0, shared.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: increment %s for %s: %w", name, userID, err)
	}
	return value, nil
}

// activityDay maps a scanned DATE to midnight of the same calendar day in loc.
func activityDay(d *time.Time, loc *time.Location) *time.Time {
	if d == nil {
		return nil
	}
	day := timeutil.DayIn(*d, loc)
	return &day
}
