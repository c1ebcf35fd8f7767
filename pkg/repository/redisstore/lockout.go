// Package redisstore keeps lockout counters in Redis so every instance
// behind a load balancer sees the same failed-login state.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shelfmart/authcore/pkg/domain"
)

const (
	defaultPrefix    = "authcore:lockout:"
	defaultRetention = 24 * time.Hour
)

// Each lockout is a hash with attempts, locked_until and locked_at, the
// timestamps in unix milliseconds. The scripts run atomically on the server.

var reserveAttemptScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local duration = tonumber(ARGV[3])
local retention = tonumber(ARGV[4])
local lockedUntil = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
local refused = 0
if lockedUntil > now then
  refused = 1
else
  local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  if attempts >= threshold then
    redis.call('HSET', KEYS[1], 'locked_until', now + duration, 'locked_at', now)
  end
  redis.call('PEXPIRE', KEYS[1], math.max(retention, duration))
end
local state = redis.call('HMGET', KEYS[1], 'attempts', 'locked_until', 'locked_at')
return {refused, state[1], state[2], state[3]}
`)

var releaseAttemptScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local owned = tonumber(ARGV[2])
local lockedUntil = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if lockedUntil > now then
  local lockedAt = tonumber(redis.call('HGET', KEYS[1], 'locked_at') or '0')
  if owned == 0 or lockedAt ~= owned then
    return 0
  end
end
redis.call('DEL', KEYS[1])
return 1
`)

var resetFailuresScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local lockedUntil = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
if lockedUntil > now then
  redis.call('HSET', KEYS[1], 'attempts', 0)
  return 1
end
redis.call('DEL', KEYS[1])
return 0
`)

// Options configures a LockoutStore.
type Options struct {
	// Prefix namespaces the keys. Defaults to "authcore:lockout:".
	Prefix string
	// Retention is how long an idle counter survives. Defaults to 24h and
	// is never shorter than the lock duration.
	Retention time.Duration
}

// LockoutStore implements the lockout port on Redis. It does not mirror
// the lock onto the user's status column.
type LockoutStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewLockoutStore creates a Redis-backed lockout store.
func NewLockoutStore(client redis.UniversalClient, opts Options) *LockoutStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	return &LockoutStore{client: client, prefix: opts.Prefix, retention: opts.Retention}
}

func (s *LockoutStore) key(userID uuid.UUID) string {
	return s.prefix + userID.String()
}

// GetLockout returns the current state. A missing key is a clean state.
func (s *LockoutStore) GetLockout(ctx context.Context, userID uuid.UUID) (domain.LockoutState, error) {
	vals, err := s.client.HMGet(ctx, s.key(userID), "attempts", "locked_until", "locked_at").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.LockoutState{}, fmt.Errorf("failed to read lockout: %w", err)
	}
	return parseState(vals)
}

// ReserveAttempt counts an attempt unless a lock is in force at now, in
// which case it returns domain.ErrAccountLocked with the current state.
func (s *LockoutStore) ReserveAttempt(ctx context.Context, userID uuid.UUID, policy domain.LockoutPolicy, now time.Time) (domain.LockoutState, error) {
	res, err := reserveAttemptScript.Run(ctx, s.client, []string{s.key(userID)},
		now.UnixMilli(), policy.Threshold, policy.Duration.Milliseconds(), s.retention.Milliseconds(),
	).Slice()
	if err != nil {
		return domain.LockoutState{}, fmt.Errorf("failed to reserve attempt: %w", err)
	}
	if len(res) != 4 {
		return domain.LockoutState{}, fmt.Errorf("unexpected reserve reply of %d fields", len(res))
	}
	st, err := parseState(res[1:])
	if err != nil {
		return st, err
	}
	if refused, _ := parseInt(res[0]); refused == 1 {
		return st, domain.ErrAccountLocked
	}
	return st, nil
}

// ReleaseAttempt drops the counter and lock unless a lock other than
// ownedLock is in force at now.
func (s *LockoutStore) ReleaseAttempt(ctx context.Context, userID uuid.UUID, ownedLock *time.Time, now time.Time) error {
	var owned int64
	if ownedLock != nil {
		owned = ownedLock.UnixMilli()
	}
	released, err := releaseAttemptScript.Run(ctx, s.client, []string{s.key(userID)}, now.UnixMilli(), owned).Int()
	if err != nil {
		return fmt.Errorf("failed to release attempt: %w", err)
	}
	if released == 0 {
		return domain.ErrAccountLocked
	}
	return nil
}

// ResetFailures zeroes the counter and drops a lock that has elapsed at now.
func (s *LockoutStore) ResetFailures(ctx context.Context, userID uuid.UUID, now time.Time) error {
	if err := resetFailuresScript.Run(ctx, s.client, []string{s.key(userID)}, now.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to reset failures: %w", err)
	}
	return nil
}

// ClearLockout removes all lockout state for the user.
func (s *LockoutStore) ClearLockout(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear lockout: %w", err)
	}
	return nil
}

func parseState(vals []any) (domain.LockoutState, error) {
	var st domain.LockoutState
	if len(vals) != 3 {
		return st, fmt.Errorf("unexpected lockout reply of %d fields", len(vals))
	}

	attempts, err := parseInt(vals[0])
	if err != nil {
		return st, err
	}
	st.FailedAttempts = int(attempts)

	if ms, err := parseInt(vals[1]); err != nil {
		return st, err
	} else if ms > 0 {
		t := time.UnixMilli(ms).UTC()
		st.LockedUntil = &t
	}
	if ms, err := parseInt(vals[2]); err != nil {
		return st, err
	} else if ms > 0 {
		t := time.UnixMilli(ms).UTC()
		st.LockedAt = &t
	}
	return st, nil
}

func parseInt(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid lockout field %q: %w", x, err)
		}
		return n, nil
	case int64:
		return x, nil
	default:
		return 0, fmt.Errorf("unexpected lockout field type %T", v)
	}
}
