package rate

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Class names an independently limited group of endpoints.
type Class string

const (
	ClassLogin          Class = "login"
	ClassRegister       Class = "register"
	ClassRefresh        Class = "refresh"
	ClassChangePassword Class = "change-password"
	ClassForgotPassword Class = "forgot-password"
	ClassResetPassword  Class = "reset-password"
)

// Rule is a bucket shape: Capacity tokens restored every Window.
type Rule struct {
	Capacity int
	Window   time.Duration
}

// DefaultRules returns the stock per-class limits.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassLogin:          {Capacity: 5, Window: time.Minute},
		ClassRegister:       {Capacity: 3, Window: time.Minute},
		ClassRefresh:        {Capacity: 10, Window: time.Minute},
		ClassChangePassword: {Capacity: 3, Window: time.Minute},
		ClassForgotPassword: {Capacity: 2, Window: time.Hour},
		ClassResetPassword:  {Capacity: 5, Window: time.Hour},
	}
}

// Config holds the limiter rules.
type Config struct {
	Rules  map[Class]Rule
	Prefix string
}

// Decision is the outcome of one consumption attempt.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long a refused client should wait; zero when allowed.
	RetryAfter time.Duration
	// Reset is the time until the bucket is refilled.
	Reset time.Duration
}

// Err returns ErrRateLimited for a refused decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimited
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (d Decision) RetryAfterSeconds() int64 {
	return ceilSeconds(d.RetryAfter)
}

// ResetSeconds rounds Reset up to whole seconds.
func (d Decision) ResetSeconds() int64 {
	if d.Reset <= 0 {
		return 0
	}
	return ceilSeconds(d.Reset)
}

func ceilSeconds(d time.Duration) int64 {
	s := int64((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

const consumeScript = `
local cap = tonumber(ARGV[1])
local win = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local st = redis.call("HMGET", KEYS[1], "tokens", "reset")
local tokens = tonumber(st[1])
local reset = tonumber(st[2])
if not tokens or not reset then
  tokens = cap
  reset = now + win
elseif now >= reset then
  tokens = cap
  reset = reset + win * (math.floor((now - reset) / win) + 1)
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call("HSET", KEYS[1], "tokens", string.format("%d", tokens), "reset", string.format("%d", reset))
redis.call("PEXPIREAT", KEYS[1], string.format("%d", reset))
return {allowed, tokens, reset - now}
`

var consumeLua = redis.NewScript(consumeScript)

// Limiter admits or refuses requests per (class, client) bucket.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// New creates a rate [Limiter] backed by the given Redis client. Classes
// missing from cfg.Rules fall back to [DefaultRules].
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	rules := DefaultRules()
	for class, rule := range cfg.Rules {
		rules[class] = rule
	}
	cfg.Rules = rules
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: redisClient, config: cfg, now: time.Now}
}

// Rule returns the bucket shape of class.
func (l *Limiter) Rule(class Class) (Rule, bool) {
	rule, ok := l.config.Rules[class]
	return rule, ok
}

func (l *Limiter) key(class Class, clientID string) string {
	return l.config.Prefix + ":" + string(class) + ":" + clientID
}

// TryConsume takes one token from the (class, clientID) bucket.
func (l *Limiter) TryConsume(ctx context.Context, class Class, clientID string) (Decision, error) {
	rule, ok := l.config.Rules[class]
	if !ok || rule.Capacity <= 0 || rule.Window <= 0 {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	res, err := consumeLua.Run(
		ctx,
		l.redis,
		[]string{l.key(class, clientID)},
		rule.Capacity,
		rule.Window.Milliseconds(),
		l.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	d := Decision{
		Allowed:   res[0] == 1,
		Limit:     rule.Capacity,
		Remaining: int(res[1]),
		Reset:     time.Duration(res[2]) * time.Millisecond,
	}
	if !d.Allowed {
		d.RetryAfter = d.Reset
	}
	return d, nil
}

const maxUserAgentLength = 255

// ClientIdentity derives the bucket identity for a client.
func ClientIdentity(ip, userAgent string) string {
	if userAgent == "" || len(userAgent) > maxUserAgentLength {
		userAgent = "unknown"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userAgent))
	if ip == "" {
		ip = "unknown"
	}
	return ip + ":" + strconv.FormatUint(uint64(h.Sum32()), 16)
}
