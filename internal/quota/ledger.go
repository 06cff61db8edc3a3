// Package quota enforces the per-caller daily download budget.
//
// The budget lives in Redis, keyed by (caller, calendar day). The
// check-and-decrement is a single server-side Lua script so that two
// concurrent requests can never both be admitted when only one of them
// fits in the remaining budget. Application-level locking is deliberately
// not used; the script is the only writer.
package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plantwatch/plantdata-api/internal/domain"
	"github.com/plantwatch/plantdata-api/internal/platform/logger"
)

const (
	dailyKeyPrefix    = "download:quota:"
	lifetimeKeyPrefix = "download:total:"

	// dailyKeyTTL bounds the daily counter so no reset job is needed.
	dailyKeyTTL = 24 * time.Hour
)

// consumeScript atomically initializes, checks, and decrements the daily
// budget while accumulating the lifetime counter.
//
// KEYS[1] = daily budget key, KEYS[2] = lifetime counter key.
// ARGV[1] = cost, ARGV[2] = TTL seconds, ARGV[3] = initial budget.
// Returns the remaining budget after the decrement, or -1 when the request
// does not fit (in which case nothing is mutated).
var consumeScript = redis.NewScript(`
local cost = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local init = tonumber(ARGV[3])
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('SET', KEYS[1], init, 'EX', ttl)
end
local remain = tonumber(redis.call('GET', KEYS[1]) or '0')
if remain < cost then
  return -1
end
redis.call('DECRBY', KEYS[1], cost)
redis.call('INCRBY', KEYS[2], cost)
if redis.call('TTL', KEYS[1]) == -1 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
return remain - cost
`)

// Unlimited is the remaining-budget value reported for privileged callers.
const Unlimited = -1

// Status describes a caller's current quota standing.
type Status struct {
	// Remaining is the budget left today, or Unlimited for admins.
	Remaining int64

	// Lifetime is the caller's cumulative consumption across all days.
	Lifetime int64

	// Ceiling is the configured daily budget.
	Ceiling int64
}

// Ledger is the Redis-backed quota ledger.
type Ledger struct {
	rdb     redis.UniversalClient
	ceiling int
	now     func() time.Time // Injectable for testing
}

// NewLedger creates a Ledger with the given daily ceiling.
func NewLedger(rdb redis.UniversalClient, ceiling int) *Ledger {
	return &Ledger{
		rdb:     rdb,
		ceiling: ceiling,
		now:     time.Now,
	}
}

// TryConsume attempts to charge cost units against the caller's daily budget.
// The check and the decrement happen in one atomic round trip; on rejection
// nothing is mutated. Privileged callers bypass the check and are never
// charged. If Redis is unreachable the operation fails closed: the caller
// is denied and the error is returned.
func (l *Ledger) TryConsume(ctx context.Context, caller domain.Caller, cost int) (bool, int64, error) {
	if cost < 1 {
		cost = 1
	}

	if caller.Admin() {
		return true, Unlimited, nil
	}

	keys := []string{l.dailyKey(caller), l.lifetimeKey(caller)}
	args := []interface{}{cost, int(dailyKeyTTL.Seconds()), l.ceiling}

	res, err := consumeScript.Run(ctx, l.rdb, keys, args...).Int64()
	if err != nil {
		logger.FromContext(ctx).Error("quota check failed, denying request",
			"error", err,
			"caller_id", caller.ID,
			"cost", cost)
		return false, 0, fmt.Errorf("quota check failed: %w", err)
	}

	if res < 0 {
		return false, l.remainingOrZero(ctx, caller), nil
	}

	return true, res, nil
}

// Status reports the caller's remaining daily budget and lifetime usage.
func (l *Ledger) Status(ctx context.Context, caller domain.Caller) (Status, error) {
	st := Status{Ceiling: int64(l.ceiling)}

	lifetime, err := l.rdb.Get(ctx, l.lifetimeKey(caller)).Result()
	switch {
	case err == redis.Nil:
		st.Lifetime = 0
	case err != nil:
		return Status{}, fmt.Errorf("failed to read lifetime counter: %w", err)
	default:
		st.Lifetime, _ = strconv.ParseInt(lifetime, 10, 64)
	}

	if caller.Admin() {
		st.Remaining = Unlimited
		return st, nil
	}

	remaining, err := l.rdb.Get(ctx, l.dailyKey(caller)).Result()
	switch {
	case err == redis.Nil:
		// Not initialized today; the full ceiling is available.
		st.Remaining = int64(l.ceiling)
	case err != nil:
		return Status{}, fmt.Errorf("failed to read daily budget: %w", err)
	default:
		st.Remaining, _ = strconv.ParseInt(remaining, 10, 64)
	}

	return st, nil
}

// remainingOrZero reads the current daily budget for rejection responses.
// A read failure here is non-fatal; the admission decision already stands.
func (l *Ledger) remainingOrZero(ctx context.Context, caller domain.Caller) int64 {
	remaining, err := l.rdb.Get(ctx, l.dailyKey(caller)).Int64()
	if err != nil {
		return 0
	}
	return remaining
}

func (l *Ledger) dailyKey(caller domain.Caller) string {
	day := l.now().UTC().Format("2006-01-02")
	return dailyKeyPrefix + caller.ID.String() + ":" + day
}

func (l *Ledger) lifetimeKey(caller domain.Caller) string {
	return lifetimeKeyPrefix + caller.ID.String()
}
