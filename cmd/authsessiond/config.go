package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession"
)

const (
	envPrefix = "AUTHSESSION_"
	// secretEnv is read from the environment only, never from files or flags.
	secretEnv = envPrefix + "JWT_SECRET"
)

type httpConfig struct {
	Addr            string        `koanf:"addr"`
	TrustProxy      bool          `koanf:"trust_proxy"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type redisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type databaseConfig struct {
	// URL enables PostgreSQL for accounts; empty keeps accounts in memory.
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
	// Sessions selects the refresh-session backend: "redis" or "postgres".
	Sessions    string `koanf:"sessions"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type logConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type sentryConfig struct {
	DSN         string `koanf:"dsn"`
	Environment string `koanf:"environment"`
}

type authConfig struct {
	Issuer              string        `koanf:"issuer"`
	AccessTTL           time.Duration `koanf:"access_ttl"`
	RefreshTTL          time.Duration `koanf:"refresh_ttl"`
	TrackSubjects       bool          `koanf:"track_subjects"`
	LockoutMaxAttempts  int           `koanf:"lockout_max_attempts"`
	LockoutDuration     time.Duration `koanf:"lockout_duration"`
	RateLimitEnabled    bool          `koanf:"rate_limit_enabled"`
	RateLimitFailClosed bool          `koanf:"rate_limit_fail_closed"`
	ResetTTL            time.Duration `koanf:"reset_ttl"`
	ResetMaxActive      int           `koanf:"reset_max_active"`
	SweepInterval       time.Duration `koanf:"sweep_interval"`
	AuditEnabled        bool          `koanf:"audit_enabled"`
}

type serverConfig struct {
	HTTP     httpConfig     `koanf:"http"`
	Redis    redisConfig    `koanf:"redis"`
	Database databaseConfig `koanf:"database"`
	Log      logConfig      `koanf:"log"`
	Sentry   sentryConfig   `koanf:"sentry"`
	Auth     authConfig     `koanf:"auth"`

	secret []byte
}

func defaultServerConfig() serverConfig {
	eng := authsession.DefaultConfig()
	return serverConfig{
		HTTP: httpConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis:    redisConfig{Addr: "localhost:6379"},
		Database: databaseConfig{MaxConns: 10, Sessions: "redis"},
		Log:      logConfig{Level: "info", Format: "json"},
		Auth: authConfig{
			Issuer:             eng.JWT.Issuer,
			AccessTTL:          eng.JWT.AccessTTL,
			RefreshTTL:         eng.Refresh.TTL,
			TrackSubjects:      eng.Revocation.TrackSubjects,
			LockoutMaxAttempts: eng.Lockout.MaxAttempts,
			LockoutDuration:    eng.Lockout.Duration,
			RateLimitEnabled:   eng.RateLimit.Enabled,
			ResetTTL:           eng.PasswordReset.TTL,
			ResetMaxActive:     eng.PasswordReset.MaxActivePerEmail,
			SweepInterval:      eng.Sweeper.Interval,
			AuditEnabled:       true,
		},
	}
}

// loadConfig layers defaults, the dotenv file, the YAML file, AUTHSESSION_*
// environment variables and explicitly set flags, later layers winning.
// Nested environment keys use a double underscore: AUTHSESSION_HTTP__ADDR.
func loadConfig(cmd *cobra.Command) (serverConfig, error) {
	cfg := defaultServerConfig()

	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, oops.Code("CONFIG_INVALID").With("env_file", envFile).Wrap(err)
		}
	}

	k := koanf.New(".")

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.Code("CONFIG_INVALID").With("config", path).Wrap(err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return cfg, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
		return cfg, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	cfg.secret = []byte(os.Getenv(secretEnv))
	return cfg, nil
}

// engineConfig maps the service settings onto the engine's Config.
func (c serverConfig) engineConfig() (authsession.Config, error) {
	cfg := authsession.DefaultConfig()
	cfg.JWT.Secret = c.secret
	cfg.JWT.Issuer = c.Auth.Issuer
	cfg.JWT.AccessTTL = c.Auth.AccessTTL
	cfg.Refresh.TTL = c.Auth.RefreshTTL
	cfg.Revocation.TrackSubjects = c.Auth.TrackSubjects
	cfg.Lockout.MaxAttempts = c.Auth.LockoutMaxAttempts
	cfg.Lockout.Duration = c.Auth.LockoutDuration
	cfg.Lockout.Window = c.Auth.LockoutDuration
	cfg.RateLimit.Enabled = c.Auth.RateLimitEnabled
	cfg.RateLimit.FailClosed = c.Auth.RateLimitFailClosed
	cfg.PasswordReset.TTL = c.Auth.ResetTTL
	cfg.PasswordReset.MaxActivePerEmail = c.Auth.ResetMaxActive
	cfg.Sweeper.Interval = c.Auth.SweepInterval
	cfg.Audit.Enabled = c.Auth.AuditEnabled

	if err := cfg.Validate(); err != nil {
		return cfg, oops.Code("CONFIG_INVALID").Hint("set " + secretEnv + " to at least 32 random bytes").Wrap(err)
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	switch c.Database.Sessions {
	case "redis":
	case "postgres":
		if c.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database.sessions=postgres requires database.url")
		}
	default:
		return oops.Code("CONFIG_INVALID").With("sessions", c.Database.Sessions).Errorf("database.sessions must be redis or postgres")
	}
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http.addr is required")
	}
	return nil
}
