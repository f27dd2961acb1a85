package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/lockout/internal/config"
	"github.com/BradenHooton/lockout/internal/database"
	"github.com/BradenHooton/lockout/internal/models"
)

// LockoutRepository keeps attempt state in the login_lockouts table so that
// every API instance shares it. Each operation is a single statement, which
// makes the per-identity read-modify-write atomic under Postgres row locking.
type LockoutRepository struct {
	db        database.Querier
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLockoutRepository creates a Postgres-backed attempt tracker
func NewLockoutRepository(db database.Querier, cfg config.LockoutConfig) *LockoutRepository {
	return &LockoutRepository{
		db:        db,
		threshold: cfg.Threshold,
		duration:  cfg.Duration,
		now:       time.Now,
	}
}

// IsLocked reports whether the identity has an unexpired lock. An expired
// row is deleted on the way out.
func (r *LockoutRepository) IsLocked(ctx context.Context, identity string) (bool, error) {
	key := models.NormalizeIdentity(identity)
	now := r.now().UTC()

	var lockedUntil *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT locked_until FROM login_lockouts WHERE identity = $1`,
		key,
	).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(database.MapPostgresError(err), models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read lockout: %w", err)
	}

	state := models.AttemptState{LockedUntil: lockedUntil}
	if state.IsLockedAt(now) {
		return true, nil
	}

	if state.LockExpiredAt(now) {
		_, err := r.db.Exec(ctx,
			`DELETE FROM login_lockouts WHERE identity = $1 AND locked_until <= $2`,
			key, now,
		)
		if err != nil {
			return false, fmt.Errorf("failed to clear expired lockout: %w", err)
		}
	}

	return false, nil
}

// LockRemaining returns the time left on an active lock, 0 for no row or an
// expired lock
func (r *LockoutRepository) LockRemaining(ctx context.Context, identity string) (time.Duration, error) {
	now := r.now().UTC()

	var lockedUntil *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT locked_until FROM login_lockouts WHERE identity = $1`,
		models.NormalizeIdentity(identity),
	).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(database.MapPostgresError(err), models.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read lockout: %w", err)
	}

	state := models.AttemptState{LockedUntil: lockedUntil}
	return state.LockRemainingAt(now), nil
}

// RecordFailure upserts the identity's row and returns the post-increment state.
// An expired lock restarts the count at 1; an active lock is never extended.
func (r *LockoutRepository) RecordFailure(ctx context.Context, identity string) (models.AttemptState, error) {
	key := models.NormalizeIdentity(identity)
	now := r.now().UTC()
	lockUntil := now.Add(r.duration)

	query := `
		INSERT INTO login_lockouts AS l (identity, failure_count, last_failure_at, locked_until)
		VALUES ($1, 1, $2, CASE WHEN 1 >= $3::int THEN $4::timestamptz END)
		ON CONFLICT (identity) DO UPDATE SET
			failure_count = CASE
				WHEN l.locked_until IS NOT NULL AND l.locked_until <= $2 THEN 1
				ELSE l.failure_count + 1
			END,
			last_failure_at = $2,
			locked_until = CASE
				WHEN l.locked_until IS NOT NULL AND l.locked_until <= $2 THEN
					CASE WHEN 1 >= $3::int THEN $4::timestamptz END
				WHEN l.locked_until IS NOT NULL THEN l.locked_until
				WHEN l.failure_count + 1 >= $3::int THEN $4::timestamptz
			END
		RETURNING identity, failure_count, last_failure_at, locked_until
	`

	var state models.AttemptState
	err := r.db.QueryRow(ctx, query, key, now, r.threshold, lockUntil).Scan(
		&state.Identity, &state.FailureCount, &state.LastFailureAt, &state.LockedUntil,
	)
	if err != nil {
		return models.AttemptState{}, fmt.Errorf("failed to record failure: %w", database.MapPostgresError(err))
	}

	return state, nil
}

// GetAttemptCount returns the failure count, 0 for no row or an expired lock
func (r *LockoutRepository) GetAttemptCount(ctx context.Context, identity string) (int, error) {
	query := `
		SELECT failure_count FROM login_lockouts
		WHERE identity = $1 AND (locked_until IS NULL OR locked_until > $2)
	`

	var count int
	err := r.db.QueryRow(ctx, query, models.NormalizeIdentity(identity), r.now().UTC()).Scan(&count)
	if err != nil {
		if errors.Is(database.MapPostgresError(err), models.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read attempt count: %w", err)
	}

	return count, nil
}

// Reset deletes the identity's row. Deleting a missing row is not an error.
func (r *LockoutRepository) Reset(ctx context.Context, identity string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM login_lockouts WHERE identity = $1`, models.NormalizeIdentity(identity))
	if err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows whose lock has already run out
func (r *LockoutRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM login_lockouts WHERE locked_until IS NOT NULL AND locked_until <= $1`,
		r.now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired lockouts: %w", err)
	}
	return tag.RowsAffected(), nil
}
