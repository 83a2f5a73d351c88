// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names an event stream.
type Type string

// Inbound workflow lifecycle events.
const (
	WorkflowStarted        Type = "workflow-started"
	AgentCompleted         Type = "agent-completed"
	WorkflowCompleted      Type = "workflow-completed"
	PreflightCheckComplete Type = "pre-flight-check-complete"
)

// Events emitted by the submission manager.
const (
	SubmissionCreated      Type = "submission-created"
	SubmissionStateChanged Type = "submission-state-changed"
	SubmissionCompleted    Type = "submission-completed"
)

// Event is one message on the bus.
type Event struct {
	ID           string          `json:"id"`
	Type         Type            `json:"type"`
	SubmissionID string          `json:"submission_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh id, marshaling payload as JSON.
func NewEvent(t Type, submissionID string, payload interface{}) (Event, error) {
	e := Event{
		ID:           uuid.NewString(),
		Type:         t,
		SubmissionID: submissionID,
		Timestamp:    time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		e.Payload = raw
	}
	return e, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Handler consumes one event.
type Handler func(ctx context.Context, e Event)

// Bus is a process-wide publish/subscribe channel.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe registers h for events of type t. The returned function
	// removes the subscription.
	Subscribe(t Type, h Handler) (func(), error)
	Close() error
}
