package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authsession/internal"
	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRotated  int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusExpired  int64 = 3
)

const (
	revokeStatusNotFound int64 = 0
	revokeStatusRevoked  int64 = 1
	revokeStatusAlready  int64 = 2
)

// rotateRefreshScript revokes the record behind KEYS[1] and creates its
// successor in one step, so two concurrent rotations of the same secret
// cannot both observe an active record.
const rotateRefreshScript = `
local prefix = ARGV[1]
local now = tonumber(ARGV[2])
local id = redis.call("GET", KEYS[1])
if not id then
  return {0}
end

local rec_key = prefix .. ":r:" .. id
local f = redis.call("HMGET", rec_key, "acc", "exp", "revoked", "dname", "ip", "ua")
if not f[1] then
  return {0}
end
if f[3] == "1" then
  return {2, id, f[1]}
end
if tonumber(f[2]) <= now then
  return {3, id, f[1]}
end

redis.call("HSET", rec_key, "revoked", "1", "revoked_at", ARGV[2], "used", ARGV[2])

local next_key = prefix .. ":r:" .. ARGV[3]
redis.call("HSET", next_key,
  "acc", f[1],
  "hash", ARGV[4],
  "exp", ARGV[5],
  "created", ARGV[2],
  "used", ARGV[2],
  "revoked", "0",
  "revoked_at", "0",
  "dname", f[4] or "",
  "ip", f[5] or "",
  "ua", f[6] or "")
redis.call("PEXPIREAT", next_key, ARGV[5])

local next_index = prefix .. ":h:" .. ARGV[4]
redis.call("SET", next_index, ARGV[3])
redis.call("PEXPIREAT", next_index, ARGV[5])

local account_key = prefix .. ":a:" .. f[1]
redis.call("ZADD", account_key, ARGV[2], ARGV[3])
redis.call("PEXPIRE", account_key, ARGV[6])

return {1, ARGV[3], f[1]}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const revokeScript = `
local rec_key = KEYS[1]
if redis.call("EXISTS", rec_key) == 0 then
  return 0
end
if redis.call("HGET", rec_key, "revoked") == "1" then
  return 2
end
redis.call("HSET", rec_key, "revoked", "1", "revoked_at", ARGV[1])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const revokeByIDScript = `
local f = redis.call("HMGET", KEYS[1], "acc", "revoked", "exp")
if not f[1] or f[1] ~= ARGV[1] then
  return 0
end
if f[2] == "1" or tonumber(f[3]) <= tonumber(ARGV[2]) then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1", "revoked_at", ARGV[2])
return 1
`

var revokeByIDLua = redis.NewScript(revokeByIDScript)

const revokeAllScript = `
local prefix = ARGV[1]
local ids = redis.call("ZRANGE", KEYS[1], 0, -1)
local count = 0
for _, id in ipairs(ids) do
  local rec_key = prefix .. ":r:" .. id
  local revoked = redis.call("HGET", rec_key, "revoked")
  if revoked == "0" then
    redis.call("HSET", rec_key, "revoked", "1", "revoked_at", ARGV[2])
    count = count + 1
  elseif not revoked then
    redis.call("ZREM", KEYS[1], id)
  end
end
return count
`

var revokeAllLua = redis.NewScript(revokeAllScript)

// Config tunes a Redis [Store].
type Config struct {
	RefreshTTL time.Duration
	Prefix     string
}

// Store keeps refresh records in Redis hashes.
//
// Layout under the configured prefix:
//
//	<p>:r:<id>      hash with the record fields, expiring at the record expiry
//	<p>:h:<sha256>  secret-hash index pointing at the record id
//	<p>:a:<account> sorted set of the account's record ids, scored by creation
//
// Revoked records are kept until they expire so a replayed secret is
// reported as [ErrRevoked] rather than [ErrNotFound].
type Store struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewStore creates a Redis-backed refresh Store.
func NewStore(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "ars"
	}
	return &Store{redis: client, config: cfg, now: time.Now}
}

func (s *Store) recordKey(id string) string {
	return s.config.Prefix + ":r:" + id
}

func (s *Store) hashKey(hashHex string) string {
	return s.config.Prefix + ":h:" + hashHex
}

func (s *Store) accountKey(accountID string) string {
	return s.config.Prefix + ":a:" + accountID
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Issue creates a new record for accountID and returns the raw secret. Each
// call produces an independent session.
func (s *Store) Issue(ctx context.Context, accountID string, device DeviceMeta) (string, *Record, error) {
	if accountID == "" {
		return "", nil, errors.New("account id is required")
	}
	raw, err := internal.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	now := s.now()
	rec := &Record{
		ID:         internal.NewRecordID(),
		AccountID:  accountID,
		SecretHash: internal.HashSecret(raw),
		Device:     device,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(s.config.RefreshTTL),
	}
	hashHex := hex.EncodeToString(rec.SecretHash[:])
	recKey := s.recordKey(rec.ID)
	idxKey := s.hashKey(hashHex)
	accKey := s.accountKey(accountID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recKey, encodeRecord(rec, hashHex))
		pipe.PExpireAt(ctx, recKey, rec.ExpiresAt)
		pipe.Set(ctx, idxKey, rec.ID, 0)
		pipe.PExpireAt(ctx, idxKey, rec.ExpiresAt)
		pipe.ZAdd(ctx, accKey, redis.Z{Score: float64(now.UnixMilli()), Member: rec.ID})
		pipe.PExpire(ctx, accKey, s.config.RefreshTTL)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return raw, rec, nil
}

// Validate resolves raw to its record and reports why it is unusable, if it is.
func (s *Store) Validate(ctx context.Context, raw string) (*Record, error) {
	rec, err := s.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := rec.Check(s.now()); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Store) lookup(ctx context.Context, raw string) (*Record, error) {
	if internal.CheckSecret(raw) != nil {
		return nil, ErrNotFound
	}
	id, err := s.redis.Get(ctx, s.hashKey(internal.HashSecretHex(raw))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeRecord(id, fields)
}

// Rotate atomically revokes the record behind raw and issues its successor,
// carrying over the device metadata. A losing concurrent rotation observes
// [ErrRevoked] and receives no secret.
func (s *Store) Rotate(ctx context.Context, raw string) (string, *Record, error) {
	if internal.CheckSecret(raw) != nil {
		return "", nil, ErrNotFound
	}
	next, err := internal.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	now := s.now()
	nextID := internal.NewRecordID()
	nextHash := internal.HashSecret(next)
	expiresAt := now.Add(s.config.RefreshTTL)

	result, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.hashKey(internal.HashSecretHex(raw))},
		s.config.Prefix,
		now.UnixMilli(),
		nextID,
		hex.EncodeToString(nextHash[:]),
		expiresAt.UnixMilli(),
		s.config.RefreshTTL.Milliseconds(),
	).Result()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) == 0 {
		return "", nil, ErrCorrupt
	}
	status, ok := values[0].(int64)
	if !ok {
		return "", nil, ErrCorrupt
	}

	switch status {
	case rotateStatusNotFound:
		return "", nil, ErrNotFound
	case rotateStatusRevoked:
		return "", nil, ErrRevoked
	case rotateStatusExpired:
		return "", nil, ErrExpired
	case rotateStatusRotated:
	default:
		return "", nil, ErrCorrupt
	}

	rec, err := s.get(ctx, nextID)
	if err != nil {
		// The successor exists even if this read failed; report the outage
		// rather than hand out a record we could not confirm.
		return "", nil, err
	}
	return next, rec, nil
}

// Revoke marks the record behind raw as revoked. Revoking an already revoked
// record is a no-op.
func (s *Store) Revoke(ctx context.Context, raw string) error {
	if internal.CheckSecret(raw) != nil {
		return ErrNotFound
	}
	id, err := s.redis.Get(ctx, s.hashKey(internal.HashSecretHex(raw))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	status, err := revokeLua.Run(ctx, s.redis, []string{s.recordKey(id)}, s.now().UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status == revokeStatusNotFound {
		return ErrNotFound
	}
	return nil
}

// RevokeAll revokes every live record of accountID and returns how many
// were revoked.
func (s *Store) RevokeAll(ctx context.Context, accountID string) (int, error) {
	n, err := revokeAllLua.Run(
		ctx,
		s.redis,
		[]string{s.accountKey(accountID)},
		s.config.Prefix,
		s.now().UnixMilli(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// RevokeByID revokes one of accountID's sessions. Ids that are unknown,
// inactive, or owned by another account all report [ErrNotFound].
func (s *Store) RevokeByID(ctx context.Context, id, accountID string) error {
	if id == "" || accountID == "" {
		return ErrNotFound
	}
	status, err := revokeByIDLua.Run(
		ctx,
		s.redis,
		[]string{s.recordKey(id)},
		accountID,
		s.now().UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if status != revokeStatusRevoked {
		return ErrNotFound
	}
	return nil
}

// ListActive returns accountID's active sessions, newest first. currentRaw,
// when non-empty, marks the caller's own session.
func (s *Store) ListActive(ctx context.Context, accountID, currentRaw string) ([]View, error) {
	ids, err := s.redis.ZRevRange(ctx, s.accountKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return []View{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var currentHash [32]byte
	hasCurrent := currentRaw != ""
	if hasCurrent {
		currentHash = internal.HashSecret(currentRaw)
	}

	now := s.now()
	views := make([]View, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(ids[i], fields)
		if err != nil || !rec.Active(now) {
			continue
		}
		views = append(views, ViewOf(rec, currentHash, hasCurrent))
	}
	SortNewestFirst(views)
	return views, nil
}

// DeleteExpired drops index entries that point at records Redis has already
// expired. Record hashes expire on their own.
func (s *Store) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	removed := 0
	iter := s.redis.Scan(ctx, 0, s.config.Prefix+":a:*", 200).Iterator()
	for iter.Next(ctx) {
		accKey := iter.Val()
		ids, err := s.redis.ZRange(ctx, accKey, 0, -1).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(ids) == 0 {
			continue
		}
		pipe := s.redis.Pipeline()
		exists := make([]*redis.IntCmd, len(ids))
		for i, id := range ids {
			exists[i] = pipe.Exists(ctx, s.recordKey(id))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		stale := make([]interface{}, 0)
		for i, cmd := range exists {
			if cmd.Val() == 0 {
				stale = append(stale, ids[i])
			}
		}
		if len(stale) == 0 {
			continue
		}
		if err := s.redis.ZRem(ctx, accKey, stale...).Err(); err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		removed += len(stale)
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return removed, nil
}

func encodeRecord(r *Record, hashHex string) map[string]interface{} {
	revoked := "0"
	if r.Revoked {
		revoked = "1"
	}
	return map[string]interface{}{
		"acc":        r.AccountID,
		"hash":       hashHex,
		"exp":        r.ExpiresAt.UnixMilli(),
		"created":    r.CreatedAt.UnixMilli(),
		"used":       r.LastUsedAt.UnixMilli(),
		"revoked":    revoked,
		"revoked_at": unixMilliOrZero(r.RevokedAt),
		"dname":      r.Device.Name,
		"ip":         r.Device.IP,
		"ua":         r.Device.UserAgent,
	}
}

func decodeRecord(id string, f map[string]string) (*Record, error) {
	hash, err := hex.DecodeString(f["hash"])
	if err != nil || len(hash) != 32 || f["acc"] == "" {
		return nil, ErrCorrupt
	}
	exp, err1 := strconv.ParseInt(f["exp"], 10, 64)
	created, err2 := strconv.ParseInt(f["created"], 10, 64)
	used, err3 := strconv.ParseInt(f["used"], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, ErrCorrupt
	}
	rec := &Record{
		ID:        id,
		AccountID: f["acc"],
		Device: DeviceMeta{
			Name:      f["dname"],
			IP:        f["ip"],
			UserAgent: f["ua"],
		},
		CreatedAt:  time.UnixMilli(created),
		LastUsedAt: time.UnixMilli(used),
		ExpiresAt:  time.UnixMilli(exp),
		Revoked:    f["revoked"] == "1",
	}
	copy(rec.SecretHash[:], hash)
	if revokedAt, err := strconv.ParseInt(f["revoked_at"], 10, 64); err == nil && revokedAt > 0 {
		rec.RevokedAt = time.UnixMilli(revokedAt)
	}
	return rec, nil
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
