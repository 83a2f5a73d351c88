// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"complianceflow/platform/shared/types"
)

func setupTestHandler() (*mux.Router, *CircuitBreaker) {
	cb, _ := newTestBreaker(Config{ErrorThreshold: 2, DefaultTimeout: time.Minute, EnableAutoRecovery: true})
	r := mux.NewRouter()
	NewHandler(cb).RegisterRoutes(r)
	return r, cb
}

func doJSON(r *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRegisterRoutes(t *testing.T) {
	r, _ := setupTestHandler()

	routes := []struct {
		path   string
		method string
	}{
		{"/api/v1/breakers", "GET"},
		{"/api/v1/breakers/outcomes", "POST"},
		{"/api/v1/breakers/trip", "POST"},
		{"/api/v1/breakers/reset", "POST"},
	}

	for _, route := range routes {
		req := httptest.NewRequest(route.method, route.path, nil)
		if !r.Match(req, &mux.RouteMatch{}) {
			t.Errorf("route %s %s not registered", route.method, route.path)
		}
	}
}

func TestOutcomeHandler_OpensBreaker(t *testing.T) {
	r, _ := setupTestHandler()
	body := OutcomeRequest{Key: testKey, Success: false}

	rr := doJSON(r, "POST", "/api/v1/breakers/outcomes", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(r, "POST", "/api/v1/breakers/outcomes", body)
	var resp map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["state"] != "open" {
		t.Errorf("expected open after threshold, got %v", resp["state"])
	}

	rr = doJSON(r, "GET", "/api/v1/breakers?capability_id=cap-1&org_id=acme", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["count"] != float64(1) {
		t.Errorf("expected 1 open breaker, got %v", resp["count"])
	}
}

func TestTripAndResetHandlers(t *testing.T) {
	r, cb := setupTestHandler()

	rr := doJSON(r, "POST", "/api/v1/breakers/trip", TripRequest{Key: testKey, Reason: "vendor outage", TimeoutSeconds: 30})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var b Breaker
	if err := json.Unmarshal(rr.Body.Bytes(), &b); err != nil {
		t.Fatalf("failed to decode breaker: %v", err)
	}
	if b.State != StateOpen || b.Reason != "vendor outage" || b.ImplementationID != "impl-a" {
		t.Errorf("unexpected breaker: %+v", b)
	}

	rr = doJSON(r, "POST", "/api/v1/breakers/reset", testKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	ids, _ := cb.OpenImplementations(httptest.NewRequest("GET", "/", nil).Context(), "cap-1", "acme")
	if len(ids) != 0 {
		t.Errorf("expected no open breakers after reset, got %v", ids)
	}
}

func TestListHandler_UsesAuthenticatedOrg(t *testing.T) {
	r, cb := setupTestHandler()
	req := httptest.NewRequest("GET", "/", nil)
	if _, err := cb.Trip(req.Context(), testKey, "", 0); err != nil {
		t.Fatal(err)
	}

	req = httptest.NewRequest("GET", "/api/v1/breakers?org_id=acme", nil)
	req = req.WithContext(types.WithOrgContext(req.Context(), types.OrgContext{OrgID: "globex"}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var resp map[string]interface{}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["count"] != float64(0) {
		t.Errorf("globex must not see acme breakers, got %v", resp["count"])
	}
}

func TestHandlers_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"outcome missing key", "/api/v1/breakers/outcomes", OutcomeRequest{}, http.StatusUnprocessableEntity},
		{"trip negative timeout", "/api/v1/breakers/trip", TripRequest{Key: testKey, TimeoutSeconds: -5}, http.StatusUnprocessableEntity},
		{"reset missing key", "/api/v1/breakers/reset", Key{}, http.StatusUnprocessableEntity},
		{"bad json", "/api/v1/breakers/trip", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := setupTestHandler()
			rr := doJSON(r, "POST", tt.path, tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}

func doJSONAs(r *mux.Router, oc types.OrgContext, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(types.WithOrgContext(req.Context(), oc))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandlers_OrgScope(t *testing.T) {
	acme := types.OrgContext{OrgID: "acme"}
	global := Key{CapabilityID: "cap-1", ImplementationID: "impl-global"}
	other := Key{CapabilityID: "cap-1", ImplementationID: "impl-other", OrgID: "globex"}

	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"trip global", "/api/v1/breakers/trip", TripRequest{Key: global}, http.StatusForbidden},
		{"trip other org", "/api/v1/breakers/trip", TripRequest{Key: other}, http.StatusForbidden},
		{"outcome global", "/api/v1/breakers/outcomes", OutcomeRequest{Key: global}, http.StatusForbidden},
		{"outcome other org", "/api/v1/breakers/outcomes", OutcomeRequest{Key: other}, http.StatusForbidden},
		{"reset global", "/api/v1/breakers/reset", global, http.StatusForbidden},
		{"reset other org", "/api/v1/breakers/reset", other, http.StatusForbidden},
		{"trip own org", "/api/v1/breakers/trip", TripRequest{Key: testKey}, http.StatusOK},
		{"outcome own org", "/api/v1/breakers/outcomes", OutcomeRequest{Key: testKey}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, cb := setupTestHandler()
			rr := doJSONAs(r, acme, "POST", tt.path, tt.body)
			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}

			ids, err := cb.OpenImplementations(context.Background(), "cap-1", "globex")
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != 0 {
				t.Errorf("acme changed breakers seen by globex: %v", ids)
			}
		})
	}
}

func TestHandlers_OperatorManagesGlobalBreakers(t *testing.T) {
	r, cb := setupTestHandler()
	operator := types.OrgContext{OrgID: "platform", Operator: true}
	global := Key{CapabilityID: "cap-1", ImplementationID: "impl-global"}

	rr := doJSONAs(r, operator, "POST", "/api/v1/breakers/trip", TripRequest{Key: global, Reason: "vendor outage"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	ids, _ := cb.OpenImplementations(context.Background(), "cap-1", "globex")
	if len(ids) != 1 || ids[0] != "impl-global" {
		t.Errorf("expected global breaker to apply to globex, got %v", ids)
	}

	rr = doJSONAs(r, operator, "POST", "/api/v1/breakers/reset", global)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	ids, _ = cb.OpenImplementations(context.Background(), "cap-1", "globex")
	if len(ids) != 0 {
		t.Errorf("expected no open breakers after reset, got %v", ids)
	}
}
