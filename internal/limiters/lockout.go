package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginGuardConfig holds the failed-login lockout policy.
type LoginGuardConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
	// Window bounds how long a partial failure count survives.
	Window time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// recordFailureScript increments the counter and, on reaching the maximum,
// swaps it for a lock entry holding the lock-expiry instant. Running it as one
// script keeps two concurrent failures from both stopping at max-1.
const recordFailureScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return {1, 0}
end
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
if n >= tonumber(ARGV[1]) then
  redis.call("SET", KEYS[2], ARGV[4], "PX", ARGV[2])
  redis.call("DEL", KEYS[1])
  return {1, n}
end
return {0, n}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// LoginGuard tracks failed logins per identifier (email or IP) and locks the
// identifier once the failure budget is spent.
//
// States: Clear (no keys), Warning(n) (counter key), Locked (lock key). Both
// keys carry TTLs, so a missing entry means "nothing recorded recently".
type LoginGuard struct {
	redis  redis.UniversalClient
	config LoginGuardConfig
	now    func() time.Time
}

// NewLoginGuard creates a LoginGuard.
func NewLoginGuard(redisClient redis.UniversalClient, cfg LoginGuardConfig) *LoginGuard {
	if cfg.Window <= 0 {
		cfg.Window = cfg.LockDuration
	}
	return &LoginGuard{redis: redisClient, config: cfg, now: time.Now}
}

// MaxAttempts returns the configured failure budget.
func (l *LoginGuard) MaxAttempts() int {
	if l == nil {
		return 0
	}
	return l.config.MaxAttempts
}

func normalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (l *LoginGuard) countKey(id string) string {
	return "ala:" + normalizeIdentifier(id)
}

func (l *LoginGuard) lockKey(id string) string {
	return "all:" + normalizeIdentifier(id)
}

// RecordFailure counts one failed attempt and reports whether the identifier
// is now locked.
func (l *LoginGuard) RecordFailure(ctx context.Context, id string) (bool, error) {
	if l == nil || normalizeIdentifier(id) == "" {
		return false, nil
	}
	lockedUntil := l.now().Add(l.config.LockDuration).UnixMilli()
	res, err := recordFailureLua.Run(
		ctx,
		l.redis,
		[]string{l.countKey(id), l.lockKey(id)},
		l.config.MaxAttempts,
		l.config.LockDuration.Milliseconds(),
		l.config.Window.Milliseconds(),
		lockedUntil,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if len(res) == 0 {
		return false, fmt.Errorf("%w: empty script reply", ErrLockoutUnavailable)
	}
	return res[0] == 1, nil
}

// RecordSuccess returns the identifier to Clear.
func (l *LoginGuard) RecordSuccess(ctx context.Context, id string) error {
	if l == nil || normalizeIdentifier(id) == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.countKey(id), l.lockKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// IsLocked reports whether the identifier is locked and for how much longer.
// A lock whose instant has passed is cleared on read.
func (l *LoginGuard) IsLocked(ctx context.Context, id string) (bool, time.Duration, error) {
	if l == nil || normalizeIdentifier(id) == "" {
		return false, 0, nil
	}
	raw, err := l.redis.Get(ctx, l.lockKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	until, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		until = 0
	}
	remaining := time.UnixMilli(until).Sub(l.now())
	if remaining <= 0 {
		if err := l.redis.Del(ctx, l.countKey(id), l.lockKey(id)).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		return false, 0, nil
	}
	return true, remaining, nil
}

// RemainingAttempts is MaxAttempts minus the current count, or 0 while locked.
func (l *LoginGuard) RemainingAttempts(ctx context.Context, id string) (int, error) {
	if l == nil {
		return 0, nil
	}
	locked, _, err := l.IsLocked(ctx, id)
	if err != nil {
		return 0, err
	}
	if locked {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.countKey(id)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	remaining := l.config.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
