package jwt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authsession/internal"
)

// MinSecretLength is the smallest HMAC key accepted by [NewManager].
const MinSecretLength = 32

var (
	// ErrTokenInvalid is the single verification failure reported to callers.
	// It deliberately does not say which check failed.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrDenylistUnavailable means the revocation backend could not be
	// consulted. It is retryable and must not be treated as an invalid token.
	ErrDenylistUnavailable = errors.New("token denylist unavailable")
	// ErrWeakSecret is returned by NewManager for absent or short keys.
	ErrWeakSecret = errors.New("jwt signing secret must be at least 32 bytes")
)

// Denylist reports whether a token identifier has been revoked.
type Denylist interface {
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// Config configures a [Manager].
type Config struct {
	Secret       []byte
	AccessTTL    time.Duration
	Issuer       string
	Leeway       time.Duration
	MaxFutureIAT time.Duration
	Denylist     Denylist
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager issues and verifies HS512 access tokens.
type Manager struct {
	config Config
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
}

// NewManager validates cfg and fails fast on a weak signing key.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 30 * time.Second
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration {
	return j.config.AccessTTL
}

// IssueAccess signs a token for subject with a fresh jti.
func (j *Manager) IssueAccess(subject string) (string, Claims, error) {
	if strings.TrimSpace(subject) == "" {
		return "", Claims{}, errors.New("subject is required")
	}
	now := j.config.Now()
	out := Claims{
		Subject:   subject,
		ID:        internal.NewTokenID(),
		IssuedAt:  now,
		ExpiresAt: now.Add(j.config.AccessTTL),
	}
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   out.Subject,
			ID:        out.ID,
			IssuedAt:  jwt.NewNumericDate(out.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(out.ExpiresAt),
			Issuer:    j.config.Issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(j.config.Secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign access token: %w", err)
	}
	// Round-trip through NumericDate so callers see the second-truncated
	// instants actually embedded in the token.
	out.IssuedAt = claims.IssuedAt.Time
	out.ExpiresAt = claims.ExpiresAt.Time
	return token, out, nil
}

// Parse verifies signature and registered claims without consulting the
// denylist. Every failure collapses to ErrTokenInvalid.
func (j *Manager) Parse(tokenStr string) (Claims, error) {
	if tokenStr == "" {
		return Claims{}, ErrTokenInvalid
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return j.config.Secret, nil
	})
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrTokenInvalid
	}
	// iat is checked here rather than by the parser so MaxFutureIAT, not
	// Leeway, bounds clock skew on issuance.
	if claims.IssuedAt == nil || claims.IssuedAt.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return Claims{}, ErrTokenInvalid
	}

	return Claims{
		Subject:   claims.Subject,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Validate is Parse followed by a denylist lookup on the token's jti.
func (j *Manager) Validate(ctx context.Context, tokenStr string) (Claims, error) {
	claims, err := j.Parse(tokenStr)
	if err != nil {
		return Claims{}, err
	}
	if j.config.Denylist == nil {
		return claims, nil
	}
	revoked, err := j.config.Denylist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrDenylistUnavailable, err)
	}
	if revoked {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}
