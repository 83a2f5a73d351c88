// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"complianceflow/platform/shared/types"
)

// Handler provides HTTP handlers for circuit breaker operations.
type Handler struct {
	cb *CircuitBreaker
}

// NewHandler creates a new circuit breaker handler.
func NewHandler(cb *CircuitBreaker) *Handler {
	return &Handler{cb: cb}
}

// RegisterRoutes registers circuit breaker routes with a mux router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/breakers", h.ListBreakers).Methods("GET")
	r.HandleFunc("/api/v1/breakers/outcomes", h.RecordOutcome).Methods("POST")
	r.HandleFunc("/api/v1/breakers/trip", h.Trip).Methods("POST")
	r.HandleFunc("/api/v1/breakers/reset", h.Reset).Methods("POST")
}

// OutcomeRequest reports one call result.
type OutcomeRequest struct {
	Key
	Success bool `json:"success"`
}

// TripRequest opens a breaker manually.
type TripRequest struct {
	Key
	Reason         string `json:"reason,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ListBreakers handles GET /api/v1/breakers
func (h *Handler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if oc, ok := types.OrgContextFrom(r.Context()); ok && oc.OrgID != "" && !oc.Operator {
		orgID = oc.OrgID
	}

	breakers, err := h.cb.List(r.Context(), r.URL.Query().Get("capability_id"), orgID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if breakers == nil {
		breakers = []Breaker{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": breakers,
		"count":    len(breakers),
	})
}

// RecordOutcome handles POST /api/v1/breakers/outcomes
func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := authorize(r, req.Key); err != nil {
		writeError(w, err.Error(), statusCode(err))
		return
	}

	state, err := h.cb.RecordOutcome(r.Context(), req.Key, req.Success)
	if err != nil {
		writeError(w, err.Error(), statusCode(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"breaker": req.Key.String(),
		"state":   state,
	})
}

// Trip handles POST /api/v1/breakers/trip
func (h *Handler) Trip(w http.ResponseWriter, r *http.Request) {
	var req TripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := authorize(r, req.Key); err != nil {
		writeError(w, err.Error(), statusCode(err))
		return
	}

	b, err := h.cb.Trip(r.Context(), req.Key, req.Reason, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		writeError(w, err.Error(), statusCode(err))
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// Reset handles POST /api/v1/breakers/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var key Key
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := authorize(r, key); err != nil {
		writeError(w, err.Error(), statusCode(err))
		return
	}

	if err := h.cb.Reset(r.Context(), key); err != nil {
		writeError(w, err.Error(), statusCode(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"breaker": key.String(),
		"state":   StateClosed,
	})
}

// authorize limits non-operator callers to their own org's breakers.
// Global breakers affect every org and need an operator. Requests without
// an org context come from a trusted network and are not restricted.
func authorize(r *http.Request, key Key) error {
	oc, ok := types.OrgContextFrom(r.Context())
	if !ok || oc.Operator {
		return nil
	}
	if key.OrgID == "" {
		return fmt.Errorf("%w: global breakers require an operator", ErrForbidden)
	}
	if key.OrgID != oc.OrgID {
		return fmt.Errorf("%w: org %s may not change breakers of org %s", ErrForbidden, oc.OrgID, key.OrgID)
	}
	return nil
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrInvalidTimeout):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrBreakerNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
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
