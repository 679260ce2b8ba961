package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsession/postgres"
)

// NewMigrateCmd creates the migrate subcommand with its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.PersistentFlags().String("database.url", "", "PostgreSQL URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			if err := migrateUp(url); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return oops.Code("MIGRATION_FAILED").Wrap(err)
			}
			cmd.Println("migrations rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or roll back when N is negative",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("steps", args[0]).Wrap(err)
			}
			if err := m.Steps(n); err != nil {
				return oops.Code("MIGRATION_FAILED").With("steps", n).Wrap(err)
			}
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m *postgres.Migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return oops.Code("MIGRATION_FAILED").Wrap(err)
			}
			cmd.Println(formatVersion(v, dirty))
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(_ *cobra.Command, m *postgres.Migrator, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("version", args[0]).Wrap(err)
			}
			if err := m.Force(v); err != nil {
				return oops.Code("MIGRATION_FAILED").With("version", v).Wrap(err)
			}
			return nil
		}),
	})

	return cmd
}

func formatVersion(v uint, dirty bool) string {
	if dirty {
		return fmt.Sprintf("version %d (dirty)", v)
	}
	return fmt.Sprintf("version %d", v)
}

func databaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").Hint("set database.url or AUTHSESSION_DATABASE__URL").Errorf("database url is required")
	}
	return cfg.Database.URL, nil
}

func withMigrator(fn func(*cobra.Command, *postgres.Migrator, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		url, err := databaseURL(cmd)
		if err != nil {
			return err
		}
		m, err := postgres.NewMigrator(url)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").Wrap(err)
		}
		defer func() { _ = m.Close() }()
		return fn(cmd, m, args)
	}
}

func migrateUp(url string) error {
	m, err := postgres.NewMigrator(url)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer func() { _ = m.Close() }()
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").Wrap(err)
	}
	return nil
}
