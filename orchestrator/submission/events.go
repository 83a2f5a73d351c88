// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import "time"

// WorkflowStartedPayload is carried by workflow-started events.
type WorkflowStartedPayload struct {
	Workflow Workflow `json:"workflow"`
}

// WorkflowCompletedPayload is carried by workflow-completed events. Status
// is completed or failed; anything else counts as completed.
type WorkflowCompletedPayload struct {
	Status  Status `json:"status"`
	Summary string `json:"summary,omitempty"`
}

// PreflightPayload is carried by pre-flight-check-complete events.
type PreflightPayload struct {
	Passed  bool                   `json:"passed"`
	Message string                 `json:"message,omitempty"`
	Checks  map[string]interface{} `json:"checks,omitempty"`
}

// StateChangedPayload is emitted on every status transition.
type StateChangedPayload struct {
	From         Status `json:"from"`
	To           Status `json:"to"`
	CurrentStage string `json:"current_stage,omitempty"`
}

// CompletedPayload is emitted once per submission when its workflow
// completes.
type CompletedPayload struct {
	Status     Status    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	SLAMet     bool      `json:"sla_met"`
	Deadline   time.Time `json:"deadline"`
	Issues     int       `json:"issues"`
	Warnings   int       `json:"warnings"`
	Summary    string    `json:"summary,omitempty"`
}
