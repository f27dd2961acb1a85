package services

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/BradenHooton/lockout/internal/config"
	"github.com/BradenHooton/lockout/internal/models"
)

// AttemptTracker records failed logins per identity and decides lockout.
// Implementations normalize the identity themselves and must keep the
// operations for a single identity linearizable.
type AttemptTracker interface {
	IsLocked(ctx context.Context, identity string) (bool, error)
	// RecordFailure returns the state after the failure has been counted.
	RecordFailure(ctx context.Context, identity string) (models.AttemptState, error)
	GetAttemptCount(ctx context.Context, identity string) (int, error)
	Reset(ctx context.Context, identity string) error
}

// ExpiredLockPurger is implemented by trackers that can drop entries whose
// lock has already run out. Purging never changes what a tracker reports,
// since an expired entry reads as no entry.
type ExpiredLockPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// LockRemainingReader is implemented by trackers that can tell how long an
// active lock still has to run. It returns 0 when the identity is not locked
// and never clears state.
type LockRemainingReader interface {
	LockRemaining(ctx context.Context, identity string) (time.Duration, error)
}

const defaultShardCount = 64

type attemptShard struct {
	mu      sync.Mutex
	entries map[string]*models.AttemptState
}

// MemoryAttemptTracker keeps attempt state in process memory.
//
// Identities are spread over a fixed set of shards; every operation on an
// identity holds its shard's mutex for the whole read-modify-write, so
// concurrent failures are never lost. Lock expiry is evaluated lazily on
// read against an absolute timestamp, there is no timer.
type MemoryAttemptTracker struct {
	shards    []*attemptShard
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// MemoryTrackerOption customizes a MemoryAttemptTracker
type MemoryTrackerOption func(*MemoryAttemptTracker)

// WithClock replaces time.Now, mainly for tests that need to move time forward.
func WithClock(now func() time.Time) MemoryTrackerOption {
	return func(t *MemoryAttemptTracker) {
		t.now = now
	}
}

// WithShardCount sets the number of lock shards (minimum 1).
func WithShardCount(n int) MemoryTrackerOption {
	return func(t *MemoryAttemptTracker) {
		if n < 1 {
			n = 1
		}
		t.shards = newAttemptShards(n)
	}
}

// NewMemoryAttemptTracker creates a tracker enforcing the given lockout policy
func NewMemoryAttemptTracker(cfg config.LockoutConfig, opts ...MemoryTrackerOption) *MemoryAttemptTracker {
	t := &MemoryAttemptTracker{
		shards:    newAttemptShards(defaultShardCount),
		threshold: cfg.Threshold,
		duration:  cfg.Duration,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newAttemptShards(n int) []*attemptShard {
	shards := make([]*attemptShard, n)
	for i := range shards {
		shards[i] = &attemptShard{entries: make(map[string]*models.AttemptState)}
	}
	return shards
}

func (t *MemoryAttemptTracker) shardFor(key string) *attemptShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

// IsLocked reports whether the identity is inside an active lockout window.
// An entry whose lock has expired is removed and reported as unlocked.
func (t *MemoryAttemptTracker) IsLocked(_ context.Context, identity string) (bool, error) {
	key := models.NormalizeIdentity(identity)
	shard := t.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.entries[key]
	if !ok {
		return false, nil
	}

	now := t.now()
	if state.IsLockedAt(now) {
		return true, nil
	}
	if state.LockExpiredAt(now) {
		delete(shard.entries, key)
	}
	return false, nil
}

// RecordFailure counts one failed attempt and locks the identity once the
// threshold is reached. An expired lock starts a fresh count. The lock is set once per cycle and is not extended
// by further failures.
func (t *MemoryAttemptTracker) RecordFailure(_ context.Context, identity string) (models.AttemptState, error) {
	key := models.NormalizeIdentity(identity)
	shard := t.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := t.now()
	state, ok := shard.entries[key]
	if !ok || state.LockExpiredAt(now) {
		state = &models.AttemptState{Identity: key}
		shard.entries[key] = state
	}

	state.FailureCount++
	state.LastFailureAt = now

	if state.FailureCount >= t.threshold && state.LockedUntil == nil {
		lockedUntil := now.Add(t.duration)
		state.LockedUntil = &lockedUntil
	}

	return copyAttemptState(state), nil
}

// GetAttemptCount returns the current failure count, 0 when there is no
// entry or its lock has expired.
func (t *MemoryAttemptTracker) GetAttemptCount(_ context.Context, identity string) (int, error) {
	key := models.NormalizeIdentity(identity)
	shard := t.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.entries[key]
	if !ok || state.LockExpiredAt(t.now()) {
		return 0, nil
	}
	return state.FailureCount, nil
}

// LockRemaining returns the time left on an active lock, 0 otherwise
func (t *MemoryAttemptTracker) LockRemaining(_ context.Context, identity string) (time.Duration, error) {
	key := models.NormalizeIdentity(identity)
	shard := t.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	return shard.entries[key].LockRemainingAt(t.now()), nil
}

// Reset deletes the identity's entry. Resetting an unknown identity is a no-op.
func (t *MemoryAttemptTracker) Reset(_ context.Context, identity string) error {
	key := models.NormalizeIdentity(identity)
	shard := t.shardFor(key)

	shard.mu.Lock()
	delete(shard.entries, key)
	shard.mu.Unlock()

	return nil
}

// State returns a copy of the identity's entry, if any.
func (t *MemoryAttemptTracker) State(identity string) (models.AttemptState, bool) {
	key := models.NormalizeIdentity(identity)
	shard := t.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.entries[key]
	if !ok {
		return models.AttemptState{}, false
	}
	return copyAttemptState(state), true
}

// PurgeExpired drops every entry whose lock has run out and returns how many were removed.
func (t *MemoryAttemptTracker) PurgeExpired(ctx context.Context) (int64, error) {
	var removed int64
	now := t.now()

	for _, shard := range t.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		shard.mu.Lock()
		for key, state := range shard.entries {
			if state.LockExpiredAt(now) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}

	return removed, nil
}

func copyAttemptState(state *models.AttemptState) models.AttemptState {
	out := *state
	if state.LockedUntil != nil {
		lockedUntil := *state.LockedUntil
		out.LockedUntil = &lockedUntil
	}
	return out
}

var (
	_ AttemptTracker      = (*MemoryAttemptTracker)(nil)
	_ ExpiredLockPurger   = (*MemoryAttemptTracker)(nil)
	_ LockRemainingReader = (*MemoryAttemptTracker)(nil)
)
