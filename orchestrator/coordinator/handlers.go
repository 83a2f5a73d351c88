// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler exposes coordinator state over HTTP.
type Handler struct {
	c *Coordinator
}

// NewHandler creates a new coordinator handler.
func NewHandler(c *Coordinator) *Handler {
	return &Handler{c: c}
}

// RegisterRoutes registers coordinator routes with a mux router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/coordinator/metrics", h.Metrics).Methods("GET")
	r.HandleFunc("/api/v1/coordinator/agents", h.ListAgents).Methods("GET")
}

// Metrics handles GET /api/v1/coordinator/metrics
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	m := h.c.Metrics()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"coordinations":          m.Coordinations,
		"total_invocations":      m.TotalInvocations,
		"successful_invocations": m.SuccessfulInvocations,
		"failed_invocations":     m.FailedInvocations,
		"average_latency_ms":     float64(m.AverageLatency.Microseconds()) / 1000.0,
		"degraded":               m.Degraded,
	})
}

// ListAgents handles GET /api/v1/coordinator/agents
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": h.c.Agents()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
