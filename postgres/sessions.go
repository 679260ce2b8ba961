package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/MrEthical07/authsession/internal"
	"github.com/MrEthical07/authsession/session"
)

// SessionStore implements authsession.RefreshStore on the refresh_sessions
// table. Semantics match session.Store: revoked rows stay until they expire
// so replays report session.ErrRevoked.
type SessionStore struct {
	db  DB
	ttl time.Duration
	now func() time.Time
}

// NewSessionStore creates a SessionStore issuing records that live for ttl.
func NewSessionStore(db DB, ttl time.Duration) *SessionStore {
	return &SessionStore{db: db, ttl: ttl, now: time.Now}
}

const sessionColumns = `id, account_id, secret_hash, device_name, ip, user_agent,
	created_at, last_used_at, expires_at, revoked, revoked_at`

// Ping checks database connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return sessionUnavailable("SESSION_PING_FAILED", err)
	}
	return nil
}

// Issue creates a new session for accountID and returns its raw secret.
func (s *SessionStore) Issue(ctx context.Context, accountID string, device session.DeviceMeta) (string, *session.Record, error) {
	raw, err := internal.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	now := s.now()
	rec := &session.Record{
		ID:         internal.NewRecordID(),
		AccountID:  accountID,
		SecretHash: internal.HashSecret(raw),
		Device:     device,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.insert(ctx, rec); err != nil {
		return "", nil, err
	}
	return raw, rec, nil
}

func (s *SessionStore) insert(ctx context.Context, rec *session.Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO refresh_sessions (id, account_id, secret_hash, device_name, ip, user_agent,
			created_at, last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.AccountID, rec.SecretHash[:], rec.Device.Name, rec.Device.IP, rec.Device.UserAgent,
		rec.CreatedAt, rec.LastUsedAt, rec.ExpiresAt)
	if err != nil {
		return sessionUnavailable("SESSION_INSERT_FAILED", err)
	}
	return nil
}

// Validate returns the active record for raw.
func (s *SessionStore) Validate(ctx context.Context, raw string) (*session.Record, error) {
	rec, err := s.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := rec.Check(s.now()); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *SessionStore) lookup(ctx context.Context, raw string) (*session.Record, error) {
	if internal.CheckSecret(raw) != nil {
		return nil, session.ErrNotFound
	}
	hash := internal.HashSecret(raw)
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM refresh_sessions WHERE secret_hash = $1`, hash[:])
	return scanSession(row)
}

// Rotate revokes the record behind raw and issues its successor. The revoke
// is a single conditional UPDATE, so of two concurrent rotations only one
// sees a row; the other gets session.ErrRevoked.
func (s *SessionStore) Rotate(ctx context.Context, raw string) (string, *session.Record, error) {
	if internal.CheckSecret(raw) != nil {
		return "", nil, session.ErrNotFound
	}
	hash := internal.HashSecret(raw)
	now := s.now()

	var prev session.Record
	err := s.db.QueryRow(ctx, `
		UPDATE refresh_sessions
		SET revoked = TRUE, revoked_at = $2, last_used_at = $2
		WHERE secret_hash = $1 AND NOT revoked AND expires_at > $2
		RETURNING id, account_id, device_name, ip, user_agent
	`, hash[:], now).Scan(&prev.ID, &prev.AccountID, &prev.Device.Name, &prev.Device.IP, &prev.Device.UserAgent)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, s.classifyInactive(ctx, raw, now)
	}
	if err != nil {
		return "", nil, sessionUnavailable("SESSION_ROTATE_FAILED", err)
	}

	nextRaw, err := internal.NewRefreshSecret()
	if err != nil {
		return "", nil, err
	}
	next := &session.Record{
		ID:         internal.NewRecordID(),
		AccountID:  prev.AccountID,
		SecretHash: internal.HashSecret(nextRaw),
		Device:     prev.Device,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.insert(ctx, next); err != nil {
		return "", nil, err
	}
	return nextRaw, next, nil
}

// classifyInactive explains why a rotation matched no row.
func (s *SessionStore) classifyInactive(ctx context.Context, raw string, now time.Time) error {
	rec, err := s.lookup(ctx, raw)
	if err != nil {
		return err
	}
	if err := rec.Check(now); err != nil {
		return err
	}
	// Active again can only mean the row changed under us; treat as lost race.
	return session.ErrRevoked
}

// Revoke marks the record behind raw revoked. Revoking an already revoked
// record is a no-op; an unknown secret is session.ErrNotFound.
func (s *SessionStore) Revoke(ctx context.Context, raw string) error {
	if internal.CheckSecret(raw) != nil {
		return session.ErrNotFound
	}
	hash := internal.HashSecret(raw)
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_sessions SET revoked = TRUE, revoked_at = $2
		WHERE secret_hash = $1 AND NOT revoked
	`, hash[:], s.now())
	if err != nil {
		return sessionUnavailable("SESSION_REVOKE_FAILED", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.lookup(ctx, raw); err != nil {
		return err
	}
	return nil
}

// RevokeAll revokes every active record of accountID and returns the count.
func (s *SessionStore) RevokeAll(ctx context.Context, accountID string) (int, error) {
	now := s.now()
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_sessions SET revoked = TRUE, revoked_at = $2
		WHERE account_id = $1 AND NOT revoked AND expires_at > $2
	`, accountID, now)
	if err != nil {
		return 0, sessionUnavailable("SESSION_REVOKE_ALL_FAILED", err)
	}
	return int(tag.RowsAffected()), nil
}

// RevokeByID revokes session id if it is an active session of accountID.
// Any other case, including another account's session, is session.ErrNotFound.
func (s *SessionStore) RevokeByID(ctx context.Context, id, accountID string) error {
	now := s.now()
	tag, err := s.db.Exec(ctx, `
		UPDATE refresh_sessions SET revoked = TRUE, revoked_at = $3
		WHERE id = $1 AND account_id = $2 AND NOT revoked AND expires_at > $3
	`, id, accountID, now)
	if err != nil {
		return sessionUnavailable("SESSION_REVOKE_FAILED", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// ListActive returns accountID's active sessions, newest first, flagging
// the one that currentRaw belongs to.
func (s *SessionStore) ListActive(ctx context.Context, accountID, currentRaw string) ([]session.View, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM refresh_sessions
		WHERE account_id = $1 AND NOT revoked AND expires_at > $2
		ORDER BY created_at DESC, id DESC
	`, accountID, s.now())
	if err != nil {
		return nil, sessionUnavailable("SESSION_LIST_FAILED", err)
	}
	defer rows.Close()

	var currentHash [32]byte
	hasCurrent := currentRaw != "" && internal.CheckSecret(currentRaw) == nil
	if hasCurrent {
		currentHash = internal.HashSecret(currentRaw)
	}

	views := make([]session.View, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, session.ViewOf(rec, currentHash, hasCurrent))
	}
	if err := rows.Err(); err != nil {
		return nil, sessionUnavailable("SESSION_LIST_FAILED", err)
	}
	return views, nil
}

// DeleteExpired removes records that expired at or before now.
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, sessionUnavailable("SESSION_SWEEP_FAILED", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (*session.Record, error) {
	var (
		rec       session.Record
		hash      []byte
		revokedAt *time.Time
	)
	err := row.Scan(&rec.ID, &rec.AccountID, &hash, &rec.Device.Name, &rec.Device.IP, &rec.Device.UserAgent,
		&rec.CreatedAt, &rec.LastUsedAt, &rec.ExpiresAt, &rec.Revoked, &revokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, sessionUnavailable("SESSION_READ_FAILED", err)
	}
	if len(hash) != len(rec.SecretHash) {
		return nil, oops.Code("SESSION_CORRUPT").With("id", rec.ID).Wrap(session.ErrCorrupt)
	}
	copy(rec.SecretHash[:], hash)
	if revokedAt != nil {
		rec.RevokedAt = *revokedAt
	}
	return &rec, nil
}

func sessionUnavailable(code string, err error) error {
	return oops.Code(code).Wrap(errors.Join(session.ErrUnavailable, err))
}
