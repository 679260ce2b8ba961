package main

import (
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession/internal/logging"
)

// NewSweepCmd creates a one-shot cleanup of dangling session and reset
// token index entries, for deployments that run it from cron instead of
// the in-process sweeper.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired session and reset-token index entries once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := logging.Setup(logging.Options{
				Service: "authsessiond",
				Version: version,
				Format:  cfg.Log.Format,
				Level:   cfg.Log.Level,
				Writer:  cmd.ErrOrStderr(),
			})

			b, err := openBackends(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close(ctx) }()

			res, err := b.engine.Sweep(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("removed %d session entries, %d reset token entries\n", res.RefreshSessions, res.ResetTokens)
			return nil
		},
	}
	cmd.Flags().String("redis.addr", "localhost:6379", "Redis address")
	cmd.Flags().String("database.url", "", "PostgreSQL URL")
	return cmd
}
