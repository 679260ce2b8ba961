package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the authsessiond CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authsessiond",
		Short: "Session and credential lifecycle service",
		Long: `authsessiond serves registration, login, token refresh, logout and
password reset over HTTP, backed by Redis and optionally PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "YAML config file path")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewReportCmd())

	return cmd
}
