package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/authsession/internal"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const (
	resetRecordVersionV1 = 1
	maxTxRetries         = 4
)

var (
	ErrResetEmpty            = errors.New("reset token empty")
	ErrResetNotFoundOrUsed   = errors.New("reset token not found or already used")
	ErrResetExpired          = errors.New("reset token expired")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// ResetRecord is a password reset grant. The token itself is not stored; the
// record is keyed by its SHA-256.
type ResetRecord struct {
	ID        string
	Email     string
	RequestIP string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    time.Time
}

// ResetConfig tunes a [ResetTokenStore].
type ResetConfig struct {
	TTL time.Duration
	// MaxActivePerEmail caps unused, unexpired tokens per email.
	MaxActivePerEmail int
	Prefix            string
}

// ResetTokenStore issues and redeems single-use password reset tokens.
//
// Layout under the configured prefix:
//
//	<p>:t:<sha256>  binary record, expiring with the token
//	<p>:e:<email>   sorted set of token hashes, scored by creation
type ResetTokenStore struct {
	redis  redis.UniversalClient
	config ResetConfig
	now    func() time.Time
}

// NewResetTokenStore creates a ResetTokenStore.
func NewResetTokenStore(redisClient redis.UniversalClient, cfg ResetConfig) *ResetTokenStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "apr"
	}
	if cfg.MaxActivePerEmail <= 0 {
		cfg.MaxActivePerEmail = 3
	}
	return &ResetTokenStore{redis: redisClient, config: cfg, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *ResetTokenStore) tokenKey(hashHex string) string {
	return s.config.Prefix + ":t:" + hashHex
}

func (s *ResetTokenStore) emailKey(email string) string {
	return s.config.Prefix + ":e:" + normalizeEmail(email)
}

func (s *ResetTokenStore) backoff() retry.Backoff {
	return retry.WithMaxRetries(maxTxRetries, retry.NewConstant(2*time.Millisecond))
}

// Issue creates a token for email unconditionally, evicting the oldest active
// tokens once the per-email cap would be exceeded. Whether an email deserves
// a token is the caller's decision.
func (s *ResetTokenStore) Issue(ctx context.Context, email, ip string) (string, *ResetRecord, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", nil, errors.New("email is required")
	}
	token, err := internal.NewResetToken()
	if err != nil {
		return "", nil, err
	}
	hashHex := internal.HashSecretHex(token)
	now := s.now()
	rec := &ResetRecord{
		ID:        internal.NewRecordID(),
		Email:     email,
		RequestIP: ip,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}
	encoded, err := encodeResetRecord(rec)
	if err != nil {
		return "", nil, err
	}
	emailKey := s.emailKey(email)

	err = retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			members, err := tx.ZRange(ctx, emailKey, 0, -1).Result()
			if err != nil {
				return err
			}
			active, stale, err := s.classify(ctx, tx, members)
			if err != nil {
				return err
			}
			evict := len(active) - (s.config.MaxActivePerEmail - 1)
			if evict < 0 {
				evict = 0
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, m := range stale {
					pipe.ZRem(ctx, emailKey, m)
				}
				// members are ordered oldest first
				for _, m := range active[:evict] {
					pipe.Del(ctx, s.tokenKey(m))
					pipe.ZRem(ctx, emailKey, m)
				}
				pipe.Set(ctx, s.tokenKey(hashHex), encoded, s.config.TTL)
				pipe.ZAdd(ctx, emailKey, redis.Z{Score: float64(now.UnixMilli()), Member: hashHex})
				pipe.Expire(ctx, emailKey, s.config.TTL)
				return nil
			})
			return err
		}, emailKey)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return token, rec, nil
}

// classify splits index members into active tokens and entries to drop.
func (s *ResetTokenStore) classify(ctx context.Context, tx *redis.Tx, members []string) ([]string, []string, error) {
	if len(members) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.tokenKey(m)
	}
	values, err := tx.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	active := make([]string, 0, len(members))
	stale := make([]string, 0)
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			stale = append(stale, members[i])
			continue
		}
		rec, err := decodeResetRecord([]byte(data))
		if err != nil || rec.Used || !now.Before(rec.ExpiresAt) {
			stale = append(stale, members[i])
			continue
		}
		active = append(active, members[i])
	}
	return active, stale, nil
}

// Consume redeems token exactly once. The record is marked used and kept
// until it expires; concurrent redemptions past the first observe
// [ErrResetNotFoundOrUsed].
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (*ResetRecord, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrResetEmpty
	}
	if internal.CheckSecret(token) != nil {
		return nil, ErrResetNotFoundOrUsed
	}
	hashHex := internal.HashSecretHex(token)
	key := s.tokenKey(hashHex)

	var consumed *ResetRecord
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrResetNotFoundOrUsed
				}
				return err
			}
			rec, err := decodeResetRecord(data)
			if err != nil {
				return ErrResetNotFoundOrUsed
			}
			if rec.Used {
				return ErrResetNotFoundOrUsed
			}
			now := s.now()
			if !now.Before(rec.ExpiresAt) {
				return ErrResetExpired
			}

			rec.Used = true
			rec.UsedAt = now
			updated, err := encodeResetRecord(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				pipe.ZRem(ctx, s.emailKey(rec.Email), hashHex)
				return nil
			})
			if err != nil {
				return err
			}
			consumed = rec
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrResetNotFoundOrUsed), errors.Is(err, ErrResetExpired):
			return nil, err
		case errors.Is(err, redis.TxFailedErr):
			// Still contended after every retry: someone else is redeeming it.
			return nil, ErrResetNotFoundOrUsed
		default:
			return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
	}
	return consumed, nil
}

// ActiveCount returns the number of unused, unexpired tokens for email.
func (s *ResetTokenStore) ActiveCount(ctx context.Context, email string) (int, error) {
	members, err := s.redis.ZRange(ctx, s.emailKey(email), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.tokenKey(m)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	now := s.now()
	count := 0
	for _, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeResetRecord([]byte(data))
		if err == nil && !rec.Used && now.Before(rec.ExpiresAt) {
			count++
		}
	}
	return count, nil
}

// PruneExpired removes index entries whose token records are gone. It backs
// the periodic sweeper; token records expire on their own.
func (s *ResetTokenStore) PruneExpired(ctx context.Context) (int, error) {
	removed := 0
	iter := s.redis.Scan(ctx, 0, s.config.Prefix+":e:*", 200).Iterator()
	for iter.Next(ctx) {
		emailKey := iter.Val()
		members, err := s.redis.ZRange(ctx, emailKey, 0, -1).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
		for _, m := range members {
			n, err := s.redis.Exists(ctx, s.tokenKey(m)).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
			if n == 1 {
				continue
			}
			if err := s.redis.ZRem(ctx, emailKey, m).Err(); err != nil {
				return removed, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return removed, nil
}

func encodeResetRecord(record *ResetRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)
	used := byte(0)
	if record.Used {
		used = 1
	}
	buf.WriteByte(used)

	for _, ts := range []int64{record.CreatedAt.UnixMilli(), record.ExpiresAt.UnixMilli(), unixMilliOrZero(record.UsedAt)} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}
	for _, field := range []string{record.ID, record.Email, record.RequestIP} {
		if len(field) > 65535 {
			return nil, errors.New("reset record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeResetRecord(data []byte) (*ResetRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != resetRecordVersionV1 {
		return nil, errors.New("invalid reset record version")
	}
	used, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	var created, expires, usedAt int64
	for _, dst := range []*int64{&created, &expires, &usedAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	fields := make([]string, 3)
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, err
		}
		fields[i] = string(b)
	}

	record := &ResetRecord{
		ID:        fields[0],
		Email:     fields[1],
		RequestIP: fields[2],
		CreatedAt: time.UnixMilli(created),
		ExpiresAt: time.UnixMilli(expires),
		Used:      used == 1,
	}
	if usedAt > 0 {
		record.UsedAt = time.UnixMilli(usedAt)
	}
	return record, nil
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
