package authsession

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authsession/internal/rate"
	"github.com/MrEthical07/authsession/password"
)

// MinSecretBytes is the shortest accepted HS512 signing secret.
const MinSecretBytes = 32

// Config is the full engine configuration. Start from DefaultConfig, set
// JWT.Secret, and call Validate; Builder.Build validates again.
type Config struct {
	JWT           JWTConfig
	Refresh       RefreshConfig
	Revocation    RevocationConfig
	Lockout       LockoutConfig
	RateLimit     RateLimitConfig
	PasswordReset PasswordResetConfig
	Password      PasswordConfig
	Sweeper       SweeperConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

type JWTConfig struct {
	// Secret is the HS512 key. It has no default.
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	// Leeway tolerates clock drift on exp and nbf.
	Leeway time.Duration
	// MaxFutureIAT rejects tokens issued further in the future than this.
	MaxFutureIAT time.Duration
}

type RefreshConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

type RevocationConfig struct {
	// TrackSubjects records issued jtis per subject so LogoutAll can
	// blacklist every outstanding access token of the account.
	TrackSubjects bool
	RedisPrefix   string
}

/*
====================================
ABUSE CONTROL CONFIG
====================================
*/

type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
	// Window bounds how long a partial failure count is remembered.
	Window time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	// FailClosed rejects requests when the limiter backend is unreachable.
	FailClosed  bool
	Rules       map[RateClass]RateRule
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordResetConfig struct {
	TTL               time.Duration
	MaxActivePerEmail int
	RedisPrefix       string
}

type PasswordConfig struct {
	Memory         uint32 // in KiB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	Policy         password.Policy
}

/*
====================================
OPERATIONS CONFIG
====================================
*/

type SweeperConfig struct {
	// Interval of zero disables the background sweeper.
	Interval time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the recommended settings. JWT.Secret is left empty.
func DefaultConfig() Config {
	argon := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			Issuer:       "authsession",
			Leeway:       5 * time.Second,
			MaxFutureIAT: 30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL:         7 * 24 * time.Hour,
			RedisPrefix: "ars",
		},
		Revocation: RevocationConfig{
			TrackSubjects: true,
			RedisPrefix:   "arv",
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
			Window:      15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Rules:       rate.DefaultRules(),
			RedisPrefix: "rl",
		},
		PasswordReset: PasswordResetConfig{
			TTL:               time.Hour,
			MaxActivePerEmail: 3,
			RedisPrefix:       "apr",
		},
		Password: PasswordConfig{
			Memory:         argon.Memory,
			Time:           argon.Time,
			Parallelism:    argon.Parallelism,
			SaltLength:     argon.SaltLength,
			KeyLength:      argon.KeyLength,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		Sweeper: SweeperConfig{
			Interval: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.RateLimit.Rules != nil {
		out.RateLimit.Rules = make(map[RateClass]RateRule, len(cfg.RateLimit.Rules))
		for k, v := range cfg.RateLimit.Rules {
			out.RateLimit.Rules[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) == 0 {
		return errors.New("JWT Secret is required")
	}
	if len(c.JWT.Secret) < MinSecretBytes {
		return fmt.Errorf("JWT Secret must be at least %d bytes", MinSecretBytes)
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.MaxFutureIAT < 0 {
		return errors.New("JWT Leeway and MaxFutureIAT must be >= 0")
	}

	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must be greater than JWT AccessTTL")
	}

	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout MaxAttempts must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}

	if c.RateLimit.Enabled {
		for _, class := range RateClasses() {
			rule, ok := c.RateLimit.Rules[class]
			if !ok {
				return fmt.Errorf("RateLimit rule for %q is missing", class)
			}
			if rule.Capacity <= 0 || rule.Window <= 0 {
				return fmt.Errorf("RateLimit rule for %q must have Capacity > 0 and Window > 0", class)
			}
		}
	}

	if c.PasswordReset.TTL <= 0 {
		return errors.New("PasswordReset TTL must be > 0")
	}
	if c.PasswordReset.MaxActivePerEmail < 1 {
		return errors.New("PasswordReset MaxActivePerEmail must be >= 1")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KiB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Policy.MinLength < 1 || c.Password.Policy.MaxLength < c.Password.Policy.MinLength {
		return errors.New("Password Policy lengths are invalid")
	}

	if c.Sweeper.Interval < 0 {
		return errors.New("Sweeper Interval must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
