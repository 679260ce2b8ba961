package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/MrEthical07/authsession"
)

// AccountStore implements authsession.AccountStore on the accounts table.
type AccountStore struct {
	db  DB
	now func() time.Time
}

// NewAccountStore creates an AccountStore.
func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db, now: time.Now}
}

var (
	_ authsession.AccountStore = (*AccountStore)(nil)
	_ authsession.RefreshStore = (*SessionStore)(nil)
)

const accountColumns = `id, email, name, password_hash, roles, disabled, created_at, updated_at`

// CreateAccount inserts account. A second account with the same email,
// compared case-insensitively, fails with authsession.ErrEmailAlreadyExists.
func (s *AccountStore) CreateAccount(ctx context.Context, account authsession.Account) error {
	now := s.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = account.CreatedAt
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, account.ID, strings.ToLower(account.Email), account.Name, account.PasswordHash, account.Roles,
		account.Disabled, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authsession.ErrEmailAlreadyExists
		}
		return unavailable("ACCOUNT_CREATE_FAILED", err)
	}
	return nil
}

// AccountByEmail looks an account up by normalised email.
func (s *AccountStore) AccountByEmail(ctx context.Context, email string) (authsession.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`,
		strings.TrimSpace(email))
	return scanAccount(row)
}

// AccountByID looks an account up by id.
func (s *AccountStore) AccountByID(ctx context.Context, id string) (authsession.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// UpdatePasswordHash replaces the stored hash for id.
func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, s.now())
	if err != nil {
		return unavailable("ACCOUNT_UPDATE_FAILED", err)
	}
	if tag.RowsAffected() == 0 {
		return authsession.ErrAccountNotFound
	}
	return nil
}

// SetDisabled enables or disables login for id.
func (s *AccountStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE accounts SET disabled = $2, updated_at = $3 WHERE id = $1`,
		id, disabled, s.now())
	if err != nil {
		return unavailable("ACCOUNT_UPDATE_FAILED", err)
	}
	if tag.RowsAffected() == 0 {
		return authsession.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (authsession.Account, error) {
	var a authsession.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Roles, &a.Disabled, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return authsession.Account{}, authsession.ErrAccountNotFound
	}
	if err != nil {
		return authsession.Account{}, unavailable("ACCOUNT_READ_FAILED", err)
	}
	return a, nil
}

// unavailable tags a database failure so callers can match the sentinel
// while logs keep the oops code.
func unavailable(code string, err error) error {
	return oops.Code(code).Wrap(errors.Join(authsession.ErrStoreUnavailable, err))
}
