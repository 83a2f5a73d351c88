// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"complianceflow/platform/orchestrator/submission"
	"complianceflow/platform/shared/types"
)

// slaCmd returns the command that prints SLA targets.
func slaCmd() *cobra.Command {
	var priority string
	var tier string
	var start string

	cmd := &cobra.Command{
		Use:   "sla",
		Short: "Print the SLA target and deadline for a submission",
		Long: `Print the completion target for a priority and org tier, and the
deadline for a submission started at --start (default now).

Examples:
  corectl sla --priority urgent
  corectl sla --priority high --tier premium --start 2025-03-10T09:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgTier := types.OrgTierStandard
			if tier != "" {
				parsed, err := types.ParseOrgTier(tier)
				if err != nil {
					return err
				}
				orgTier = parsed
			}

			startTime := time.Now().UTC()
			if start != "" {
				parsed, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				startTime = parsed
			}

			p := submission.ParsePriority(priority)
			sla := submission.NewSLA(p, orgTier, startTime)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Priority: %s\n", p)
			fmt.Fprintf(out, "Tier:     %s\n", orgTier)
			fmt.Fprintf(out, "Target:   %s\n", sla.Target)
			fmt.Fprintf(out, "Start:    %s\n", sla.StartTime.Format(time.RFC3339))
			fmt.Fprintf(out, "Deadline: %s\n", sla.Deadline.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "normal", "Submission priority (urgent, high, normal, low)")
	cmd.Flags().StringVarP(&tier, "tier", "t", "", "Org tier (standard, premium)")
	cmd.Flags().StringVar(&start, "start", "", "Start time in RFC3339 (default now)")

	return cmd
}
