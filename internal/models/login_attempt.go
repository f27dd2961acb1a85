package models

import "time"

// AttemptState tracks failed logins for a single identity.
// An entry exists only after the first failure and is removed on a successful
// login or when its lock is observed to have expired.
type AttemptState struct {
	Identity      string     `db:"identity"`
	FailureCount  int        `db:"failure_count"`
	LastFailureAt time.Time  `db:"last_failure_at"`
	LockedUntil   *time.Time `db:"locked_until"`
}

// IsLockedAt reports whether the state holds a lock that is still active at now.
func (s *AttemptState) IsLockedAt(now time.Time) bool {
	return s != nil && s.LockedUntil != nil && s.LockedUntil.After(now)
}

// LockRemainingAt returns how long the lock still has to run at now, 0 when
// there is no active lock.
func (s *AttemptState) LockRemainingAt(now time.Time) time.Duration {
	if !s.IsLockedAt(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// LockExpiredAt reports whether the state carries a lock that has already run out.
// Such a state is equivalent to no state at all.
func (s *AttemptState) LockExpiredAt(now time.Time) bool {
	return s != nil && s.LockedUntil != nil && !s.LockedUntil.After(now)
}
