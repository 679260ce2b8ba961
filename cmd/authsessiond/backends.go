package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/postgres"
)

// backends holds the engine and the connections it was built on.
type backends struct {
	engine *authsession.Engine
	redis  *redis.Client
	pool   *pgxpool.Pool
}

func openBackends(ctx context.Context, cfg serverConfig, logger *slog.Logger) (*backends, error) {
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return nil, err
	}

	b := &backends{
		redis: redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}),
	}
	if err := b.redis.Ping(ctx).Err(); err != nil {
		_ = b.redis.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
	}

	builder := authsession.New().
		WithConfig(engineCfg).
		WithRedis(b.redis).
		WithLogger(logger)

	if cfg.Database.URL == "" {
		logger.Warn("no database configured, accounts are kept in memory and lost on restart")
		builder = builder.WithAccountStore(authsession.NewMemoryAccountStore())
	} else {
		if cfg.Database.AutoMigrate {
			if err := migrateUp(cfg.Database.URL); err != nil {
				_ = b.redis.Close()
				return nil, err
			}
		}
		b.pool, err = postgres.Connect(ctx, cfg.Database.URL, postgres.ConnectConfig{MaxConns: cfg.Database.MaxConns})
		if err != nil {
			_ = b.redis.Close()
			return nil, err
		}
		builder = builder.WithAccountStore(postgres.NewAccountStore(b.pool))
		if cfg.Database.Sessions == "postgres" {
			builder = builder.WithRefreshStore(postgres.NewSessionStore(b.pool, engineCfg.Refresh.TTL))
		}
	}

	b.engine, err = builder.Build()
	if err != nil {
		b.closeConns()
		return nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	return b, nil
}

// health reports whether every backing store answers.
func (b *backends) health(ctx context.Context) error {
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return err
	}
	if b.pool != nil {
		return b.pool.Ping(ctx)
	}
	return nil
}

func (b *backends) closeConns() {
	if b.pool != nil {
		b.pool.Close()
	}
	_ = b.redis.Close()
}

func (b *backends) Close(ctx context.Context) error {
	var err error
	if b.engine != nil {
		err = b.engine.Close(ctx)
	}
	b.closeConns()
	return err
}
