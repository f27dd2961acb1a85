package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/lockout/internal/config"
	"github.com/BradenHooton/lockout/internal/models"
	"github.com/redis/go-redis/v9"
)

// Attempt state lives in one hash per identity with the fields below, all
// timestamps in unix milliseconds. A locked hash carries a TTL equal to the
// lock duration, so Redis reclaims expired entries on its own.
const (
	fieldCount       = "count"
	fieldLastFailure = "last_failure"
	fieldLockedUntil = "locked_until"
)

var recordFailureScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local duration = tonumber(ARGV[3])

local locked = tonumber(redis.call('HGET', key, 'locked_until') or '0')
local count = tonumber(redis.call('HGET', key, 'count') or '0')

if locked > 0 and locked <= now then
	redis.call('DEL', key)
	locked = 0
	count = 0
end

count = count + 1
redis.call('HSET', key, 'count', count, 'last_failure', string.format('%d', now))

if count >= threshold and locked == 0 then
	locked = now + duration
	redis.call('HSET', key, 'locked_until', string.format('%d', locked))
	redis.call('PEXPIRE', key, duration)
end

return {count, locked}
`)

var isLockedScript = redis.NewScript(`
local locked = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if locked == 0 then
	return 0
end
if locked > tonumber(ARGV[1]) then
	return 1
end
redis.call('DEL', KEYS[1])
return 0
`)

// RedisLockoutRepository shares attempt state across instances through Redis.
// Read-modify-write steps run as Lua scripts, which Redis executes atomically.
type RedisLockoutRepository struct {
	client    *redis.Client
	prefix    string
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewRedisLockoutRepository creates a Redis-backed attempt tracker
func NewRedisLockoutRepository(client *redis.Client, prefix string, cfg config.LockoutConfig) *RedisLockoutRepository {
	if prefix == "" {
		prefix = "lockout"
	}
	return &RedisLockoutRepository{
		client:    client,
		prefix:    prefix,
		threshold: cfg.Threshold,
		duration:  cfg.Duration,
		now:       time.Now,
	}
}

func (r *RedisLockoutRepository) key(identity string) string {
	return r.prefix + ":" + models.NormalizeIdentity(identity)
}

// IsLocked reports whether the identity has an unexpired lock
func (r *RedisLockoutRepository) IsLocked(ctx context.Context, identity string) (bool, error) {
	locked, err := isLockedScript.Run(ctx, r.client, []string{r.key(identity)}, r.now().UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("redis is locked: %w", err)
	}
	return locked == 1, nil
}

// RecordFailure counts a failure and returns the post-increment state
func (r *RedisLockoutRepository) RecordFailure(ctx context.Context, identity string) (models.AttemptState, error) {
	now := r.now()

	res, err := recordFailureScript.Run(ctx, r.client,
		[]string{r.key(identity)},
		now.UnixMilli(), r.threshold, r.duration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return models.AttemptState{}, fmt.Errorf("redis record failure: %w", err)
	}
	if len(res) != 2 {
		return models.AttemptState{}, fmt.Errorf("redis record failure: unexpected reply length %d", len(res))
	}

	state := models.AttemptState{
		Identity:      models.NormalizeIdentity(identity),
		FailureCount:  int(res[0]),
		LastFailureAt: time.UnixMilli(now.UnixMilli()).UTC(),
	}
	if res[1] > 0 {
		lockedUntil := time.UnixMilli(res[1]).UTC()
		state.LockedUntil = &lockedUntil
	}

	return state, nil
}

// GetAttemptCount returns the failure count, 0 for no entry or an expired lock
func (r *RedisLockoutRepository) GetAttemptCount(ctx context.Context, identity string) (int, error) {
	vals, err := r.client.HMGet(ctx, r.key(identity), fieldCount, fieldLockedUntil).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis hmget: %w", err)
	}

	count, err := parseRedisInt(vals[0])
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", fieldCount, err)
	}
	lockedUntil, err := parseRedisInt(vals[1])
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", fieldLockedUntil, err)
	}

	if lockedUntil > 0 && lockedUntil <= r.now().UnixMilli() {
		return 0, nil
	}
	return int(count), nil
}

// LockRemaining returns the time left on an active lock, 0 otherwise
func (r *RedisLockoutRepository) LockRemaining(ctx context.Context, identity string) (time.Duration, error) {
	val, err := r.client.HGet(ctx, r.key(identity), fieldLockedUntil).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis hget: %w", err)
	}

	lockedUntil, err := parseRedisInt(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", fieldLockedUntil, err)
	}

	remaining := lockedUntil - r.now().UnixMilli()
	if lockedUntil == 0 || remaining <= 0 {
		return 0, nil
	}
	return time.Duration(remaining) * time.Millisecond, nil
}

// Reset deletes the identity's hash
func (r *RedisLockoutRepository) Reset(ctx context.Context, identity string) error {
	if err := r.client.Del(ctx, r.key(identity)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// parseRedisInt reads an HMGET value; missing fields come back as nil
func parseRedisInt(v any) (int64, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
