// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complianceflow/platform/shared/logger"
	"complianceflow/platform/shared/types"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// captureOrg records the org context the middleware attached.
func captureOrg(got *types.OrgContext, seen *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got, *seen = types.OrgContextFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticator_ValidToken(t *testing.T) {
	a := NewAuthenticator(testSecret, nil, logger.Nop())
	var got types.OrgContext
	var seen bool

	req := httptest.NewRequest("GET", "/api/v1/submissions", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"org_id":   "acme",
		"org_tier": "premium",
		"sub":      "user-7",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}))
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	a.Middleware(captureOrg(&got, &seen)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, seen)
	assert.Equal(t, "acme", got.OrgID)
	assert.Equal(t, types.OrgTierPremium, got.Tier)
	assert.Equal(t, "user-7", got.UserID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
	assert.False(t, got.Operator)
}

func TestAuthenticator_OperatorRole(t *testing.T) {
	a := NewAuthenticator(testSecret, nil, logger.Nop())

	oc, err := a.ParseToken(signToken(t, testSecret, jwt.MapClaims{"org_id": "platform", "role": "operator"}))
	require.NoError(t, err)
	assert.True(t, oc.Operator)

	oc, err = a.ParseToken(signToken(t, testSecret, jwt.MapClaims{"org_id": "acme", "role": "admin"}))
	require.NoError(t, err)
	assert.False(t, oc.Operator)
}

func TestAuthenticator_TenantClaimAndPremiumList(t *testing.T) {
	a := NewAuthenticator(testSecret, []string{"globex"}, logger.Nop())

	oc, err := a.ParseToken(signToken(t, testSecret, jwt.MapClaims{"tenant_id": "globex"}))
	require.NoError(t, err)
	assert.Equal(t, "globex", oc.OrgID)
	assert.Equal(t, types.OrgTierPremium, oc.Tier)

	oc, err = a.ParseToken(signToken(t, testSecret, jwt.MapClaims{"org_id": "globex", "org_tier": "standard"}))
	require.NoError(t, err)
	assert.Equal(t, types.OrgTierStandard, oc.Tier, "explicit claim wins over the premium list")

	oc, err = a.ParseToken(signToken(t, testSecret, jwt.MapClaims{"org_id": "initech", "org_tier": "platinum"}))
	require.NoError(t, err)
	assert.Equal(t, types.OrgTierStandard, oc.Tier)
}

func TestAuthenticator_Rejects(t *testing.T) {
	a := NewAuthenticator(testSecret, nil, logger.Nop())

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"org_id": "acme"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "wrong secret", header: "Bearer " + signToken(t, "other", jwt.MapClaims{"org_id": "acme"})},
		{name: "expired", header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"org_id": "acme", "exp": time.Now().Add(-time.Hour).Unix()})},
		{name: "no org claim", header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "user-7"})},
		{name: "alg none", header: "Bearer " + none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest("GET", "/api/v1/breakers", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			a.Middleware(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestAuthenticator_Disabled(t *testing.T) {
	a := NewAuthenticator("", []string{"acme"}, logger.Nop())
	assert.False(t, a.Enabled())

	var got types.OrgContext
	var seen bool
	req := httptest.NewRequest("GET", "/api/v1/submissions", nil)
	req.Header.Set("X-Org-ID", "acme")
	rec := httptest.NewRecorder()
	a.Middleware(captureOrg(&got, &seen)).ServeHTTP(rec, req)

	require.True(t, seen)
	assert.Equal(t, "acme", got.OrgID)
	assert.Equal(t, types.OrgTierPremium, got.Tier)
	assert.True(t, got.Operator, "unverified header identity is not tenant scoped")
	assert.NotEmpty(t, got.RequestID)

	seen = false
	rec = httptest.NewRecorder()
	a.Middleware(captureOrg(&got, &seen)).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/submissions", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, seen)
}
