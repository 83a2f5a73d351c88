// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"complianceflow/platform/shared/types"
)

// Handler provides HTTP handlers for implementation selection
type Handler struct {
	selector *Selector
}

// NewHandler creates a new selection handler
func NewHandler(selector *Selector) *Handler {
	return &Handler{selector: selector}
}

// RegisterRoutes registers selection routes with a gorilla/mux router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/capabilities/{key}/select", h.Select).Methods("POST")
}

// SelectRequest is the request body for a selection
type SelectRequest struct {
	OrgID   string                 `json:"org_id,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Select handles POST /api/v1/capabilities/{key}/select
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var body SelectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	req := Request{
		CapabilityKey: mux.Vars(r)["key"],
		OrgID:         body.OrgID,
		RequestID:     r.Header.Get("X-Request-ID"),
		Context:       body.Context,
	}
	if oc, ok := types.OrgContextFrom(r.Context()); ok && oc.OrgID != "" {
		req.OrgID = oc.OrgID
		if req.RequestID == "" {
			req.RequestID = oc.RequestID
		}
	} else if req.OrgID == "" {
		req.OrgID = r.Header.Get("X-Org-ID")
	}

	sel, err := h.selector.Select(r.Context(), req)
	if err != nil {
		writeError(w, err.Error(), StatusCode(err))
		return
	}

	writeJSON(w, http.StatusOK, sel)
}

// StatusCode maps selector errors onto HTTP status codes.
func StatusCode(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsValidation(err):
		return http.StatusUnprocessableEntity
	case IsUnavailable(err):
		return http.StatusServiceUnavailable
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
