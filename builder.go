package authsession

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/limiters"
	"github.com/MrEthical07/authsession/internal/rate"
	"github.com/MrEthical07/authsession/internal/stores"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/password"
	"github.com/MrEthical07/authsession/revocation"
	"github.com/MrEthical07/authsession/session"
)

// dummyPassword is hashed at Build so logins for unknown emails cost the
// same verification work as real ones.
const dummyPassword = "authsession-timing-equalizer"

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts AccountStore
	refresh  RefreshStore
	hasher   PasswordHasher
	notifier ResetNotifier
	sink     AuditSink
	logger   *slog.Logger
	now      func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing revocation, lockout, rate limiting,
// reset tokens, and (unless WithRefreshStore is used) refresh sessions.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithRefreshStore replaces the Redis refresh-session store, for example
// with postgres.SessionStore.
func (b *Builder) WithRefreshStore(store RefreshStore) *Builder {
	b.refresh = store
	return b
}

func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithResetNotifier(n ResetNotifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// withClock overrides time for the engine and its token signer.
func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		logger:   logger,
		now:      now,
	}

	engine.revocation = revocation.NewCache(b.redis, revocation.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		TrackSubjects: cfg.Revocation.TrackSubjects,
		Prefix:        cfg.Revocation.RedisPrefix,
	}, logger)

	jm, err := jwt.NewManager(jwt.Config{
		Secret:       cloneBytes(cfg.JWT.Secret),
		AccessTTL:    cfg.JWT.AccessTTL,
		Issuer:       cfg.JWT.Issuer,
		Leeway:       cfg.JWT.Leeway,
		MaxFutureIAT: cfg.JWT.MaxFutureIAT,
		Denylist:     engine.revocation,
		Now:          now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwt = jm

	if b.refresh != nil {
		engine.refresh = b.refresh
	} else {
		engine.refresh = session.NewStore(b.redis, session.Config{
			RefreshTTL: cfg.Refresh.TTL,
			Prefix:     cfg.Refresh.RedisPrefix,
		})
	}

	engine.guard = limiters.NewLoginGuard(b.redis, limiters.LoginGuardConfig{
		MaxAttempts:  cfg.Lockout.MaxAttempts,
		LockDuration: cfg.Lockout.Duration,
		Window:       cfg.Lockout.Window,
	})

	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, rate.Config{
			Rules:  cfg.RateLimit.Rules,
			Prefix: cfg.RateLimit.RedisPrefix,
		})
	}

	engine.resets = stores.NewResetTokenStore(b.redis, stores.ResetConfig{
		TTL:               cfg.PasswordReset.TTL,
		MaxActivePerEmail: cfg.PasswordReset.MaxActivePerEmail,
		Prefix:            cfg.PasswordReset.RedisPrefix,
	})

	if b.hasher != nil {
		engine.hasher = b.hasher
	} else {
		ph, err := newDefaultHasher(cfg)
		if err != nil {
			return nil, err
		}
		engine.hasher = ph
	}

	dummy, err := engine.hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummy

	engine.notifier = b.notifier
	if engine.notifier == nil {
		engine.notifier = logResetNotifier{logger: logger}
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}

func newDefaultHasher(cfg Config) (*password.Argon2, error) {
	return password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
}
