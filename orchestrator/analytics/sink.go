// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package analytics receives aggregates from the submission manager and the
// agent coordinator. Sinks are observers only: nothing they record feeds back
// into routing or verdicts.
package analytics

import "time"

// AgentPerformance is the rolling aggregate for one agent.
type AgentPerformance struct {
	Agent         string        `json:"agent"`
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	AvgDuration   time.Duration `json:"avg_duration_ns"`
	MinDuration   time.Duration `json:"min_duration_ns"`
	MaxDuration   time.Duration `json:"max_duration_ns"`
}

// CoordinatorMetrics is a snapshot of the coordinator's rolling counters.
type CoordinatorMetrics struct {
	Coordinations         int64         `json:"coordinations"`
	TotalInvocations      int64         `json:"total_invocations"`
	SuccessfulInvocations int64         `json:"successful_invocations"`
	FailedInvocations     int64         `json:"failed_invocations"`
	AverageLatency        time.Duration `json:"average_latency_ns"`
	Degraded              int64         `json:"degraded"`
}

// SubmissionOutcome is emitted once per submission reaching a terminal
// workflow state.
type SubmissionOutcome struct {
	SubmissionID string        `json:"submission_id"`
	OrgID        string        `json:"org_id,omitempty"`
	Priority     string        `json:"priority"`
	Status       string        `json:"status"`
	Duration     time.Duration `json:"duration_ns"`
	SLAMet       bool          `json:"sla_met"`
	Issues       int           `json:"issues"`
	Warnings     int           `json:"warnings"`
}

// Sink receives analytics records. Implementations must be safe for
// concurrent use and must not block for long.
type Sink interface {
	RecordAgentPerformance(p AgentPerformance)
	RecordCoordinatorMetrics(m CoordinatorMetrics)
	RecordSubmissionOutcome(o SubmissionOutcome)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordAgentPerformance(AgentPerformance)     {}
func (NopSink) RecordCoordinatorMetrics(CoordinatorMetrics) {}
func (NopSink) RecordSubmissionOutcome(SubmissionOutcome)   {}

// Multi fans records out to several sinks.
type Multi []Sink

func (m Multi) RecordAgentPerformance(p AgentPerformance) {
	for _, s := range m {
		s.RecordAgentPerformance(p)
	}
}

func (m Multi) RecordCoordinatorMetrics(c CoordinatorMetrics) {
	for _, s := range m {
		s.RecordCoordinatorMetrics(c)
	}
}

func (m Multi) RecordSubmissionOutcome(o SubmissionOutcome) {
	for _, s := range m {
		s.RecordSubmissionOutcome(o)
	}
}
