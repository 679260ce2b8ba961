package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession/httpapi"
	"github.com/MrEthical07/authsession/internal/logging"
	promexport "github.com/MrEthical07/authsession/metrics/export/prometheus"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("http.addr", ":8080", "listen address")
	cmd.Flags().Bool("http.trust_proxy", false, "take client IPs from X-Forwarded-For")
	cmd.Flags().String("redis.addr", "localhost:6379", "Redis address")
	cmd.Flags().String("database.url", "", "PostgreSQL URL for accounts (empty keeps them in memory)")
	cmd.Flags().String("database.sessions", "redis", "refresh session backend: redis or postgres")
	cmd.Flags().Bool("database.auto_migrate", false, "apply migrations before serving")
	cmd.Flags().String("log.level", "info", "log level: debug, info, warn, error")
	cmd.Flags().String("log.format", "json", "log format: json or text")

	return cmd
}

func runServe(ctx context.Context, cfg serverConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	logger := logging.Setup(logging.Options{
		Service: "authsessiond",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	slog.SetDefault(logger)

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			Release:          version,
			AttachStacktrace: true,
		})
		if err != nil {
			return oops.Code("CONFIG_INVALID").Wrap(err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			logging.LogError(closeCtx, logger, "engine close failed", err)
		}
	}()

	if cfg.Auth.SweepInterval > 0 {
		b.engine.StartSweeper(ctx, cfg.Auth.SweepInterval)
		defer b.engine.StopSweeper()
	}

	reg := promexport.NewRegistry(promexport.NewCollector(b.engine))
	api := httpapi.New(b.engine, httpapi.Options{
		Logger:     logger,
		TrustProxy: cfg.HTTP.TrustProxy,
		Metrics:    promexport.Handler(reg),
		Health:     b.health,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
