// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"complianceflow/platform/orchestrator/selector"
	"complianceflow/platform/shared/logger"
)

// selectCmd returns the command for an offline selection dry-run.
func selectCmd() *cobra.Command {
	var inventoryPath string
	var orgID string
	var tier string
	var contextJSON string

	cmd := &cobra.Command{
		Use:   "select <capability-key>",
		Short: "Dry-run implementation selection against an inventory file",
		Long: `Run the implementation selector against a YAML inventory and print the
selection, including the audit record that would be written.

Examples:
  corectl select document-review --inventory inventory.yaml
  corectl select document-review --inventory inventory.yaml --org acme --tier quality`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inventoryPath == "" {
				return fmt.Errorf("--inventory is required")
			}
			store, err := selector.LoadInventory(inventoryPath)
			if err != nil {
				return err
			}

			reqCtx := map[string]interface{}{}
			if contextJSON != "" {
				if err := json.Unmarshal([]byte(contextJSON), &reqCtx); err != nil {
					return fmt.Errorf("invalid --context: %w", err)
				}
			}
			if tier != "" {
				reqCtx["tier"] = tier
			}

			sel, err := selector.NewSelector(store,
				selector.WithLogger(logger.NewWithWriter("corectl", io.Discard, logger.ERROR)),
			).Select(cmd.Context(), selector.Request{
				CapabilityKey: args[0],
				OrgID:         orgID,
				Context:       reqCtx,
			})
			if err != nil {
				return fmt.Errorf("selection failed: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sel)
		},
	}

	cmd.Flags().StringVarP(&inventoryPath, "inventory", "i", os.Getenv("INVENTORY_FILE"), "Inventory YAML file (default $INVENTORY_FILE)")
	cmd.Flags().StringVarP(&orgID, "org", "o", "", "Organization to select for")
	cmd.Flags().StringVarP(&tier, "tier", "t", "", "Request a tier explicitly (quality)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "Caller context as a JSON object")

	return cmd
}
