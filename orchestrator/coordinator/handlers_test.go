// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"complianceflow/platform/shared/types"
)

func TestHandler_Metrics(t *testing.T) {
	c := newTestCoordinator(decides("a", types.DecisionApprove, nil), failing("b"))
	c.Coordinate(context.Background(), requestsFor("a", "b"))

	r := mux.NewRouter()
	NewHandler(c).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coordinator/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["total_invocations"] != float64(2) {
		t.Errorf("expected 2 invocations, got %v", body["total_invocations"])
	}
	if body["failed_invocations"] != float64(1) {
		t.Errorf("expected 1 failure, got %v", body["failed_invocations"])
	}
}

func TestHandler_ListAgents(t *testing.T) {
	c := newTestCoordinator(decides("b", types.DecisionApprove, nil), decides("a", types.DecisionApprove, nil))

	r := mux.NewRouter()
	NewHandler(c).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/coordinator/agents", nil))

	var body struct {
		Agents []string `json:"agents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Agents) != 2 || body.Agents[0] != "a" {
		t.Errorf("unexpected agents: %v", body.Agents)
	}
}
