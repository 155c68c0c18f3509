// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KeyGate Contributors

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the KeyGate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygate",
		Short: "KeyGate - authentication and credential lifecycle service",
		Long: `KeyGate issues and verifies access and refresh tokens, manages
password credentials with reuse prevention, and tracks revocable sessions.`,
		PersistentPreRun: func(*cobra.Command, []string) {
			if configFile == "" {
				if path := xdg.DefaultConfigFile(); fileExists(path) {
					configFile = path
				}
			}
		},
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: "+xdg.DefaultConfigFile()+" if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
