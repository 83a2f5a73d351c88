// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"strings"
	"time"

	"complianceflow/platform/shared/types"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further status transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority drives the SLA target.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// ParsePriority normalizes a priority name. Empty or unknown names map to
// PriorityNormal.
func ParsePriority(s string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return p
	default:
		return PriorityNormal
	}
}

// Workflow is the definition attached when the workflow engine starts
// processing a submission.
type Workflow struct {
	Name   string   `json:"name"`
	Stages []string `json:"stages,omitempty"`
	Agents []string `json:"agents,omitempty"`
}

// Progress tracks completed agent steps.
type Progress struct {
	Percentage     int `json:"percentage"`
	CompletedSteps int `json:"completed_steps"`
	TotalSteps     int `json:"total_steps"`
}

// SLA holds the completion target. Deadline is fixed at creation.
type SLA struct {
	Target    time.Duration `json:"target"`
	StartTime time.Time     `json:"start_time"`
	Deadline  time.Time     `json:"deadline"`
	Breached  bool          `json:"breached"`
	Met       *bool         `json:"met,omitempty"`
}

// TimelineEntry is one append-only lifecycle record.
type TimelineEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     string                 `json:"event"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Timeline event names
const (
	TimelineCreated           = "submission_created"
	TimelineWorkflowStarted   = "workflow_started"
	TimelineAgentCompleted    = "agent_completed"
	TimelineWorkflowCompleted = "workflow_completed"
	TimelinePreflight         = "pre_flight_check"
	TimelineMetadataUpdated   = "metadata_updated"
	TimelineCancelled         = "submission_cancelled"
	TimelineVerdictRecorded   = "verdict_recorded"
)

// AgentResult is one agent's output, as carried by agent-completed events.
type AgentResult struct {
	Agent       string         `json:"agent"`
	Stage       string         `json:"stage,omitempty"`
	Decision    types.Decision `json:"decision"`
	Confidence  *float64       `json:"confidence,omitempty"`
	Rationale   string         `json:"rationale,omitempty"`
	Issues      []string       `json:"issues,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Duration returns the agent run time.
func (r AgentResult) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// Verdict is the synthesized multi-agent decision recorded on a submission.
type Verdict struct {
	Decision           types.Verdict `json:"decision"`
	Confidence         float64       `json:"confidence"`
	Rationale          string        `json:"rationale"`
	RecommendedActions []string      `json:"recommended_actions,omitempty"`
	AgentsSucceeded    int           `json:"agents_succeeded"`
	AgentsFailed       int           `json:"agents_failed"`
	Degraded           bool          `json:"degraded,omitempty"`
	RecordedAt         time.Time     `json:"recorded_at"`
}

// Submission is one tracked unit of work.
type Submission struct {
	ID           string                 `json:"id"`
	OrgID        string                 `json:"org_id,omitempty"`
	OrgTier      types.OrgTier          `json:"org_tier"`
	Status       Status                 `json:"status"`
	Priority     Priority               `json:"priority"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	Content      map[string]interface{} `json:"content,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Workflow     *Workflow              `json:"workflow,omitempty"`
	CurrentStage string                 `json:"current_stage,omitempty"`
	Progress     Progress               `json:"progress"`
	SLA          SLA                    `json:"sla"`
	Timeline     []TimelineEntry        `json:"timeline"`
	AgentResults map[string]AgentResult `json:"agent_results"`
	Issues       []string               `json:"issues"`
	Warnings     []string               `json:"warnings"`
	Verdict      *Verdict               `json:"verdict,omitempty"`
	CancelReason string                 `json:"cancel_reason,omitempty"`
}

// clone returns a copy that shares no mutable state with s.
func (s *Submission) clone() *Submission {
	c := *s
	c.Content = copyMap(s.Content)
	c.Metadata = copyMap(s.Metadata)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.Workflow != nil {
		w := *s.Workflow
		w.Stages = append([]string(nil), s.Workflow.Stages...)
		w.Agents = append([]string(nil), s.Workflow.Agents...)
		c.Workflow = &w
	}
	if s.SLA.Met != nil {
		met := *s.SLA.Met
		c.SLA.Met = &met
	}
	c.Timeline = append([]TimelineEntry(nil), s.Timeline...)
	c.AgentResults = make(map[string]AgentResult, len(s.AgentResults))
	for k, v := range s.AgentResults {
		c.AgentResults[k] = v
	}
	c.Issues = append([]string{}, s.Issues...)
	c.Warnings = append([]string{}, s.Warnings...)
	if s.Verdict != nil {
		v := *s.Verdict
		v.RecommendedActions = append([]string(nil), s.Verdict.RecommendedActions...)
		c.Verdict = &v
	}
	return &c
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
