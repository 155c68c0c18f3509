// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/store"
)

// NewMigrateCmd creates the migrate subcommand tree.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	config.RegisterFlags(cmd.PersistentFlags())

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
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
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (destructive)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			m, err := store.NewMigrator(url)
			if err != nil {
				return err
			}
			defer m.Close() //nolint:errcheck // best effort on CLI exit
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("all migrations rolled back")
			return nil
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the migration version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < 0 {
				return oops.Code("INVALID_VERSION").Errorf("version must be a non-negative integer")
			}
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			m, err := store.NewMigrator(url)
			if err != nil {
				return err
			}
			defer m.Close() //nolint:errcheck // best effort on CLI exit
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("migration version forced to %d\n", version)
			return nil
		},
	}

	cmd.AddCommand(up, down, force)
	return cmd
}

// migrateUp applies all pending migrations against the database.
func migrateUp(databaseURL string) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // best effort

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	return m.Up()
}

// databaseURL resolves the database URL from flags and config file.
func databaseURL(cmd *cobra.Command) (string, error) {
	cfg, err := loadDatabaseConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Database.URL, nil
}

// loadDatabaseConfig loads just enough configuration for store commands.
// Validation of auth settings is skipped; migrations do not need a JWT
// secret.
func loadDatabaseConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err == nil {
		return cfg, nil
	}
	// Retry without validation so migrate works with a bare database URL.
	partial, perr := config.LoadPartial(configFile, cmd.Flags())
	if perr != nil {
		return nil, err
	}
	if partial.Database.URL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	return partial, nil
}
