package authsession

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/authsession/internal"
	"github.com/MrEthical07/authsession/internal/rate"
	"github.com/MrEthical07/authsession/session"
)

// DefaultRole is assigned to every registered account.
const DefaultRole = "USER"

// Account is the identity record the engine authenticates against. Email is
// stored lower-cased and compared case-insensitively.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Roles        []string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the account carries role.
func (a Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AccountStore persists accounts. Implementations return
// ErrEmailAlreadyExists on a duplicate email and ErrAccountNotFound for a
// missing account; any other error is treated as a backend outage.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// RefreshStore is the durable, revocable refresh-session state. session.Store
// (Redis) and postgres.SessionStore implement it. Errors use the session
// package sentinels.
type RefreshStore interface {
	Issue(ctx context.Context, accountID string, device session.DeviceMeta) (string, *session.Record, error)
	// Validate returns the record together with ErrRevoked or ErrExpired
	// when it exists but is inactive.
	Validate(ctx context.Context, raw string) (*session.Record, error)
	// Rotate must revoke the old record and create its successor atomically
	// with respect to concurrent rotations of the same secret.
	Rotate(ctx context.Context, raw string) (string, *session.Record, error)
	Revoke(ctx context.Context, raw string) error
	RevokeAll(ctx context.Context, accountID string) (int, error)
	RevokeByID(ctx context.Context, id, accountID string) error
	ListActive(ctx context.Context, accountID, currentRaw string) ([]session.View, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// PasswordHasher hashes and verifies passwords. password.Argon2 is the
// default implementation.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// ResetNotifier delivers a password-reset token to its owner. It is only
// called for emails that belong to an account.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// logResetNotifier records the issuance without the token itself.
type logResetNotifier struct {
	logger *slog.Logger
}

func (n logResetNotifier) NotifyPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "password reset token issued",
		"email_fp", internal.Fingerprint(email),
		"token_fp", internal.Fingerprint(token),
		"expires_at", expiresAt,
	)
	return nil
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// TokenPair is returned by Login and Refresh. ExpiresIn and
// RefreshExpiresIn are in seconds.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// AuthResult is the outcome of a successful access-token validation.
type AuthResult struct {
	AccountID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionInfo describes one active refresh session. It never carries the
// refresh secret.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"device_name,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Current    bool      `json:"current"`
}

// SweepResult counts records removed by one Sweep run.
type SweepResult struct {
	RefreshSessions int
	ResetTokens     int
}

type (
	RateClass = rate.Class
	RateRule  = rate.Rule
)

const (
	RateLogin          = rate.ClassLogin
	RateRegister       = rate.ClassRegister
	RateRefresh        = rate.ClassRefresh
	RateChangePassword = rate.ClassChangePassword
	RateForgotPassword = rate.ClassForgotPassword
	RateResetPassword  = rate.ClassResetPassword
)

// RateClasses lists every endpoint class in a stable order.
func RateClasses() []RateClass {
	return []RateClass{
		RateLogin,
		RateRegister,
		RateRefresh,
		RateChangePassword,
		RateForgotPassword,
		RateResetPassword,
	}
}

// DefaultRateRules returns the recommended per-class limits.
func DefaultRateRules() map[RateClass]RateRule {
	return rate.DefaultRules()
}
