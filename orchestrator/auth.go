// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"complianceflow/platform/shared/logger"
	"complianceflow/platform/shared/types"
)

// operatorRole in the role claim grants access to global resources.
const operatorRole = "operator"

// Authenticator resolves the calling organization for API requests and
// stores it in the request context as a types.OrgContext.
//
// With a JWT secret configured every request must carry an HS256 bearer
// token whose org_id (or tenant_id) claim names the org. Without a secret
// the org is read from the X-Org-ID header, which is only suitable for
// trusted networks.
type Authenticator struct {
	secret  []byte
	premium map[string]bool
	logger  *logger.Logger
}

// NewAuthenticator creates an Authenticator. premiumOrgs receive the
// premium tier when the token does not say otherwise.
func NewAuthenticator(secret string, premiumOrgs []string, l *logger.Logger) *Authenticator {
	premium := make(map[string]bool, len(premiumOrgs))
	for _, org := range premiumOrgs {
		premium[org] = true
	}
	return &Authenticator{secret: []byte(secret), premium: premium, logger: l}
}

// Enabled reports whether bearer tokens are required.
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Middleware authenticates the request and attaches the org context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		oc, err := a.orgContext(r)
		if err != nil {
			a.logger.Warn("", requestID, "Rejected unauthenticated request", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		if oc == nil {
			next.ServeHTTP(w, r)
			return
		}
		oc.RequestID = requestID
		next.ServeHTTP(w, r.WithContext(types.WithOrgContext(r.Context(), *oc)))
	})
}

// orgContext returns nil without error when auth is disabled and no org
// header is present.
func (a *Authenticator) orgContext(r *http.Request) (*types.OrgContext, error) {
	if !a.Enabled() {
		orgID := r.Header.Get("X-Org-ID")
		if orgID == "" {
			return nil, nil
		}
		// Header identity is unverified, so it carries no tenancy guarantees.
		return &types.OrgContext{OrgID: orgID, Tier: a.tierFor(orgID, ""), Operator: true}, nil
	}

	authHeader := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("missing bearer token")
	}
	return a.ParseToken(strings.TrimSpace(tokenString))
}

// ParseToken validates a token and extracts the org context from its claims.
func (a *Authenticator) ParseToken(tokenString string) (*types.OrgContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	orgID := getClaimString(claims, "org_id")
	if orgID == "" {
		orgID = getClaimString(claims, "tenant_id")
	}
	if orgID == "" {
		return nil, fmt.Errorf("token has no org_id claim")
	}

	return &types.OrgContext{
		OrgID:    orgID,
		Tier:     a.tierFor(orgID, getClaimString(claims, "org_tier")),
		UserID:   getClaimString(claims, "sub"),
		Operator: getClaimString(claims, "role") == operatorRole,
	}, nil
}

// tierFor prefers a valid tier claim and falls back to the premium list.
func (a *Authenticator) tierFor(orgID, claimed string) types.OrgTier {
	if claimed != "" {
		if tier, err := types.ParseOrgTier(claimed); err == nil {
			return tier
		}
	}
	if a.premium[orgID] {
		return types.OrgTierPremium
	}
	return types.OrgTierStandard
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}
