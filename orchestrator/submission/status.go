// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// StatusView is the live projection returned by Status.
type StatusView struct {
	ID               string    `json:"id"`
	Status           Status    `json:"status"`
	Priority         Priority  `json:"priority"`
	CurrentStage     string    `json:"current_stage,omitempty"`
	Progress         Progress  `json:"progress"`
	Deadline         time.Time `json:"deadline"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
	RemainingSeconds float64   `json:"remaining_seconds"`
	SLAStatus        string    `json:"sla_status"`
	ActiveAgents     []string  `json:"active_agents"`
	CompletedAgents  []string  `json:"completed_agents"`
	NextSteps        []string  `json:"next_steps"`
	Issues           int       `json:"issues"`
	Warnings         int       `json:"warnings"`
	Verdict          *Verdict  `json:"verdict,omitempty"`
}

// Status projects the submission against its SLA. Time is measured up to
// now for in-flight submissions and up to completion otherwise.
func (m *Manager) Status(ctx context.Context, id string) (*StatusView, error) {
	var view *StatusView
	err := m.withEntry(id, func(sub *Submission) {
		view = project(sub, m.now())
	})
	return view, err
}

func project(sub *Submission, now time.Time) *StatusView {
	end := now
	if sub.CompletedAt != nil {
		end = *sub.CompletedAt
	}
	elapsed := end.Sub(sub.SLA.StartTime)
	remaining := sub.SLA.Deadline.Sub(end)

	slaStatus := SLAOnTrack
	if remaining < 0 || sub.SLA.Breached {
		slaStatus = SLABreached
	}

	completed := make([]string, 0, len(sub.AgentResults))
	for name := range sub.AgentResults {
		completed = append(completed, name)
	}
	sort.Strings(completed)

	active := []string{}
	if sub.Status == StatusProcessing && sub.Workflow != nil {
		for _, agent := range sub.Workflow.Agents {
			if _, done := sub.AgentResults[agent]; !done {
				active = append(active, agent)
			}
		}
	}

	view := &StatusView{
		ID:               sub.ID,
		Status:           sub.Status,
		Priority:         sub.Priority,
		CurrentStage:     sub.CurrentStage,
		Progress:         sub.Progress,
		Deadline:         sub.SLA.Deadline,
		ElapsedSeconds:   elapsed.Seconds(),
		RemainingSeconds: remaining.Seconds(),
		SLAStatus:        slaStatus,
		ActiveAgents:     active,
		CompletedAgents:  completed,
		Issues:           len(sub.Issues),
		Warnings:         len(sub.Warnings),
	}
	if sub.Verdict != nil {
		v := *sub.Verdict
		view.Verdict = &v
	}
	view.NextSteps = nextSteps(sub, active, slaStatus)
	return view
}

func nextSteps(sub *Submission, active []string, slaStatus string) []string {
	steps := []string{}
	switch sub.Status {
	case StatusCreated:
		steps = append(steps, "Waiting for workflow to start")
	case StatusProcessing:
		if len(active) > 0 {
			steps = append(steps, fmt.Sprintf("Waiting on agents: %s", strings.Join(active, ", ")))
		} else {
			steps = append(steps, "Waiting for workflow to complete")
		}
	case StatusFailed:
		steps = append(steps, "Review workflow failure and resubmit")
	case StatusCancelled:
		steps = append(steps, "Submission cancelled; no further action")
	}

	if len(sub.Issues) > 0 {
		steps = append(steps, fmt.Sprintf("Address compliance issues (%d)", len(sub.Issues)))
	}
	if slaStatus == SLABreached && !sub.Status.IsTerminal() {
		steps = append(steps, "SLA breached; escalate to reviewer")
	}
	if sub.Status == StatusCompleted && len(sub.Issues) == 0 {
		steps = append(steps, "No action required")
	}
	return steps
}
