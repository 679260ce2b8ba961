package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the revocation backend could not be reached.
var ErrUnavailable = errors.New("revocation backend unavailable")

const defaultPrefix = "arv"

// Config configures a [Cache].
type Config struct {
	// AccessTTL bounds the lifetime of every entry.
	AccessTTL time.Duration
	// TrackSubjects records issued jtis per subject for bulk revocation.
	TrackSubjects bool
	Prefix        string
}

const blacklistSubjectScript = `
local now = tonumber(ARGV[1])
local prefix = ARGV[2]
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now)
local entries = redis.call("ZRANGE", KEYS[1], 0, -1, "WITHSCORES")
local count = 0
for i = 1, #entries, 2 do
  local ttl = tonumber(entries[i + 1]) - now
  if ttl > 0 then
    redis.call("SET", prefix .. entries[i], ARGV[1], "PX", string.format("%d", ttl))
    count = count + 1
  end
end
redis.call("DEL", KEYS[1])
return count
`

var blacklistSubjectLua = redis.NewScript(blacklistSubjectScript)

// Cache is the Redis-backed jti denylist.
type Cache struct {
	redis  redis.UniversalClient
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewCache builds a Cache. A nil logger falls back to slog.Default.
func NewCache(client redis.UniversalClient, cfg Config, logger *slog.Logger) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{redis: client, config: cfg, logger: logger, now: time.Now}
}

func (c *Cache) key(jti string) string {
	return c.config.Prefix + ":j:" + jti
}

func (c *Cache) subjectKey(subject string) string {
	return c.config.Prefix + ":s:" + subject
}

// Blacklist denies jti for the remaining access-token lifetime.
func (c *Cache) Blacklist(ctx context.Context, jti string) error {
	if jti == "" {
		return nil
	}
	inserted := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.redis.Set(ctx, c.key(jti), inserted, c.config.AccessTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether jti has been denied.
func (c *Cache) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := c.redis.Exists(ctx, c.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// Track remembers that jti was issued to subject. It is a no-op unless
// subject tracking is enabled.
func (c *Cache) Track(ctx context.Context, subject, jti string, expiresAt time.Time) error {
	if !c.config.TrackSubjects || subject == "" || jti == "" {
		return nil
	}
	key := c.subjectKey(subject)
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiresAt.UnixMilli()), Member: jti})
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(c.now().UnixMilli(), 10))
		pipe.Expire(ctx, key, c.config.AccessTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// BlacklistAllForSubject denies every tracked, unexpired jti of subject and
// returns how many were denied. Without tracking it logs and returns 0.
func (c *Cache) BlacklistAllForSubject(ctx context.Context, subject string) (int, error) {
	if subject == "" {
		return 0, nil
	}
	if !c.config.TrackSubjects {
		c.logger.WarnContext(ctx, "revocation: subject-wide revocation requested without jti tracking; outstanding access tokens expire naturally",
			"subject", subject,
			"access_ttl", c.config.AccessTTL.String(),
		)
		return 0, nil
	}

	n, err := blacklistSubjectLua.Run(
		ctx,
		c.redis,
		[]string{c.subjectKey(subject)},
		c.now().UnixMilli(),
		c.config.Prefix+":j:",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
