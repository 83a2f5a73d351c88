// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"complianceflow/platform/orchestrator/coordinator"
	"complianceflow/platform/orchestrator/eventbus"
	"complianceflow/platform/shared/types"
)

// inboundEvents are the event types accepted on POST /api/v1/events.
var inboundEvents = map[eventbus.Type]bool{
	eventbus.WorkflowStarted:        true,
	eventbus.AgentCompleted:         true,
	eventbus.WorkflowCompleted:      true,
	eventbus.PreflightCheckComplete: true,
}

// Handler provides HTTP handlers for submission tracking.
type Handler struct {
	manager     *Manager
	coordinator *coordinator.Coordinator
}

// NewHandler creates a submission handler. A nil coordinator disables the
// coordinate endpoint.
func NewHandler(m *Manager, c *coordinator.Coordinator) *Handler {
	return &Handler{manager: m, coordinator: c}
}

// RegisterRoutes registers submission routes with a mux router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/submissions", h.Create).Methods("POST")
	r.HandleFunc("/api/v1/submissions", h.List).Methods("GET")
	r.HandleFunc("/api/v1/submissions/{id}", h.Get).Methods("GET")
	r.HandleFunc("/api/v1/submissions/{id}", h.UpdateMetadata).Methods("PATCH")
	r.HandleFunc("/api/v1/submissions/{id}/status", h.Status).Methods("GET")
	r.HandleFunc("/api/v1/submissions/{id}/timeline", h.Timeline).Methods("GET")
	r.HandleFunc("/api/v1/submissions/{id}/cancel", h.Cancel).Methods("POST")
	r.HandleFunc("/api/v1/submissions/{id}/coordinate", h.Coordinate).Methods("POST")
	r.HandleFunc("/api/v1/events", h.PublishEvent).Methods("POST")
	r.HandleFunc("/api/v1/agents/performance", h.AgentPerformance).Methods("GET")
}

// Create handles POST /api/v1/submissions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	in.RequestID = r.Header.Get("X-Request-ID")
	if oc, ok := types.OrgContextFrom(r.Context()); ok && oc.OrgID != "" {
		in.OrgID = oc.OrgID
		in.OrgTier = oc.Tier
	} else if in.OrgID == "" {
		in.OrgID = r.Header.Get("X-Org-ID")
	}

	sub, err := h.manager.Create(r.Context(), in)
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// List handles GET /api/v1/submissions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f := ListFilter{
		OrgID:  r.URL.Query().Get("org_id"),
		Status: Status(r.URL.Query().Get("status")),
	}
	if oc, ok := types.OrgContextFrom(r.Context()); ok && oc.OrgID != "" {
		f.OrgID = oc.OrgID
	}

	subs := h.manager.List(r.Context(), f)
	if subs == nil {
		subs = []*Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": subs,
		"count":       len(subs),
	})
}

// Get handles GET /api/v1/submissions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// Status handles GET /api/v1/submissions/{id}/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.load(w, r)
	if !ok {
		return
	}
	view, err := h.manager.Status(r.Context(), sub.ID)
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Timeline handles GET /api/v1/submissions/{id}/timeline
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submission_id": sub.ID,
		"timeline":      sub.Timeline,
	})
}

// UpdateMetadata handles PATCH /api/v1/submissions/{id}
func (h *Handler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.load(w, r)
	if !ok {
		return
	}

	var body struct {
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.manager.UpdateMetadata(r.Context(), sub.ID, body.Metadata)
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Cancel handles POST /api/v1/submissions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.load(w, r)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	cancelled, err := h.manager.Cancel(r.Context(), sub.ID, body.Reason)
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// CoordinateRequest selects which agents review a submission.
type CoordinateRequest struct {
	Agents         []string               `json:"agents,omitempty"`
	Input          map[string]interface{} `json:"input,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
}

// Coordinate handles POST /api/v1/submissions/{id}/coordinate. It runs the
// agents against the submission content and records the verdict.
func (h *Handler) Coordinate(w http.ResponseWriter, r *http.Request) {
	if h.coordinator == nil {
		writeError(w, "agent coordination is not configured", http.StatusServiceUnavailable)
		return
	}
	sub, ok := h.load(w, r)
	if !ok {
		return
	}

	var body CoordinateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	agents := body.Agents
	if len(agents) == 0 && sub.Workflow != nil {
		agents = sub.Workflow.Agents
	}
	if len(agents) == 0 {
		agents = h.coordinator.Agents()
	}
	if len(agents) == 0 {
		writeError(w, "no agents to coordinate", http.StatusUnprocessableEntity)
		return
	}

	input := copyMap(sub.Content)
	if input == nil {
		input = make(map[string]interface{})
	}
	for k, v := range body.Input {
		input[k] = v
	}
	reqCtx := map[string]interface{}{
		"submission_id": sub.ID,
		"org_id":        sub.OrgID,
		"priority":      string(sub.Priority),
		"current_stage": sub.CurrentStage,
	}
	requests := make([]coordinator.Request, len(agents))
	for i, a := range agents {
		requests[i] = coordinator.Request{Agent: a, Input: input, Context: reqCtx}
	}

	var opts []coordinator.CallOption
	switch {
	case body.TimeoutSeconds > 0:
		opts = append(opts, coordinator.WithTimeout(time.Duration(body.TimeoutSeconds)*time.Second))
	case h.coordinator.Timeout() <= 0:
		opts = append(opts, coordinator.WithTimeout(coordinator.DefaultTimeout))
	}

	// A client disconnect must not fail every agent and overwrite an earlier
	// verdict with a degraded one, so the run is detached from the request.
	ctx := context.WithoutCancel(r.Context())
	res := h.coordinator.Coordinate(ctx, requests, opts...)

	updated, err := h.manager.RecordVerdict(ctx, sub.ID, Verdict{
		Decision:           res.FinalDecision,
		Confidence:         res.Confidence,
		Rationale:          res.Rationale,
		RecommendedActions: res.RecommendedActions,
		AgentsSucceeded:    res.Succeeded,
		AgentsFailed:       res.Failed,
		Degraded:           res.Degraded,
	})
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submission":   updated,
		"coordination": res,
	})
}

// EventRequest injects a workflow event onto the bus.
type EventRequest struct {
	Type         eventbus.Type   `json:"type"`
	SubmissionID string          `json:"submission_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// PublishEvent handles POST /api/v1/events
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var body EventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !inboundEvents[body.Type] {
		err := fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, body.Type)
		writeError(w, err.Error(), StatusCode(err))
		return
	}
	sub, err := h.manager.Get(r.Context(), body.SubmissionID)
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return
	}
	if !visible(r, sub) {
		writeError(w, fmt.Sprintf("%s: %s", ErrSubmissionNotFound, sub.ID), http.StatusNotFound)
		return
	}

	var payload interface{}
	if len(body.Payload) > 0 {
		payload = body.Payload
	}
	e, err := eventbus.NewEvent(body.Type, body.SubmissionID, payload)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.manager.Bus().Publish(r.Context(), e); err != nil {
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": e.ID})
}

// AgentPerformance handles GET /api/v1/agents/performance
func (h *Handler) AgentPerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.manager.Tracker().Snapshot(),
	})
}

// load fetches the submission named in the path. Submissions of another org
// are reported as missing.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Submission, bool) {
	sub, err := h.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return nil, false
	}
	if !visible(r, sub) {
		writeError(w, fmt.Sprintf("%s: %s", ErrSubmissionNotFound, sub.ID), http.StatusNotFound)
		return nil, false
	}
	return sub, true
}

func visible(r *http.Request, sub *Submission) bool {
	oc, ok := types.OrgContextFrom(r.Context())
	return !ok || oc.OrgID == "" || sub.OrgID == oc.OrgID
}

// StatusCode maps submission errors onto HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrSubmissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSubmissionExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidEvent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
