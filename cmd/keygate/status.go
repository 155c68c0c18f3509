// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/store"
)

// ServiceStatus holds the status information reported by the status command.
type ServiceStatus struct {
	Database         string `json:"database"`
	MigrationVersion uint   `json:"migration_version"`
	MigrationName    string `json:"migration_name,omitempty"`
	Dirty            bool   `json:"dirty"`
	Pending          []uint `json:"pending_migrations,omitempty"`
	Error            string `json:"error,omitempty"`
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database and migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	status := queryStatus(cmd)

	if jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("database:          %s\n", status.Database)
	if status.Error != "" {
		cmd.Printf("error:             %s\n", status.Error)
		return nil
	}
	cmd.Printf("migration version: %d", status.MigrationVersion)
	if status.MigrationName != "" {
		cmd.Printf(" (%s)", status.MigrationName)
	}
	cmd.Println()
	cmd.Printf("dirty:             %v\n", status.Dirty)
	if len(status.Pending) > 0 {
		cmd.Printf("pending:           %v\n", status.Pending)
	}
	return nil
}

func queryStatus(cmd *cobra.Command) ServiceStatus {
	status := ServiceStatus{Database: "unreachable"}

	url, err := databaseURL(cmd)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := store.Open(ctx, url)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer pool.Close()
	status.Database = "ok"

	m, err := store.NewMigrator(url)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer m.Close() //nolint:errcheck // best effort on CLI exit

	version, dirty, err := m.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.MigrationVersion = version
	status.Dirty = dirty

	if name, err := store.MigrationName(version); err == nil {
		status.MigrationName = name
	}
	if pending, err := m.PendingMigrations(); err == nil {
		status.Pending = pending
	}
	return status
}
