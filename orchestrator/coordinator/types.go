// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"context"
	"errors"
	"time"

	"complianceflow/platform/shared/types"
)

var (
	// ErrUnknownAgent is returned for requests naming an unregistered agent
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrAgentTimeout marks agents that did not answer before the deadline
	ErrAgentTimeout = errors.New("agent did not finish before the coordination deadline")

	// ErrAgentPanicked marks agents whose invocation panicked
	ErrAgentPanicked = errors.New("agent panicked")

	// ErrEmptyResult is returned when an agent reports neither result nor error
	ErrEmptyResult = errors.New("agent returned no result")
)

// Request is one agent invocation.
type Request struct {
	Agent   string                 `json:"agent"`
	Input   map[string]interface{} `json:"input,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Result is an agent's answer.
type Result struct {
	Agent      string         `json:"agent"`
	Decision   types.Decision `json:"decision"`
	Confidence *float64       `json:"confidence,omitempty"`
	Rationale  string         `json:"rationale,omitempty"`
	Issues     []string       `json:"issues,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Outcome is the typed result of one invocation: exactly one of Result and
// Err is set.
type Outcome struct {
	Agent    string        `json:"agent"`
	Result   *Result       `json:"result,omitempty"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Result != nil
}

func failed(agent string, err error, d time.Duration) Outcome {
	return Outcome{Agent: agent, Err: err, Error: err.Error(), Duration: d}
}

// Agent is an independent analysis step.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc struct {
	AgentName string
	Fn        func(ctx context.Context, req Request) (*Result, error)
}

// Name implements Agent.
func (f AgentFunc) Name() string { return f.AgentName }

// Invoke implements Agent.
func (f AgentFunc) Invoke(ctx context.Context, req Request) (*Result, error) {
	return f.Fn(ctx, req)
}

// CoordinationResult is the synthesized verdict of one coordination round.
type CoordinationResult struct {
	FinalDecision      types.Verdict `json:"final_decision"`
	Confidence         float64       `json:"confidence"`
	Rationale          string        `json:"rationale"`
	RecommendedActions []string      `json:"recommended_actions"`
	Approvals          int           `json:"approvals"`
	Rejections         int           `json:"rejections"`
	Succeeded          int           `json:"succeeded"`
	Failed             int           `json:"failed"`
	Degraded           bool          `json:"degraded,omitempty"`
	Outcomes           []Outcome     `json:"outcomes"`
	Duration           time.Duration `json:"duration_ns"`
}
