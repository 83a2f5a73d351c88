// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main implements corectl, the operator CLI for the compliance
// orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"complianceflow/platform/orchestrator"
)

var version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "corectl",
		Short:         "ComplianceFlow operator CLI",
		Long:          `corectl runs the compliance orchestrator and answers routing and SLA questions offline.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(slaCmd())

	return rootCmd
}

// serveCmd returns the serve subcommand.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator service",
		Long: `Run the orchestrator HTTP service until interrupted.

Settings come from the environment (PORT, DATABASE_URL, REDIS_URL,
INVENTORY_FILE, AGENTS_FILE, JWT_SECRET, ...) or from the YAML file
named by CONFIG_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return orchestrator.Run()
		},
	}
}
