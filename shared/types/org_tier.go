// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package types

import (
	"fmt"
	"strings"
)

// OrgTier is the commercial plan of an organization.
type OrgTier string

const (
	// OrgTierStandard is the default plan.
	OrgTierStandard OrgTier = "standard"
	// OrgTierPremium gets tighter submission SLAs.
	OrgTierPremium OrgTier = "premium"
)

// String returns the string representation of the OrgTier
func (t OrgTier) String() string {
	return string(t)
}

// IsValid returns true if the OrgTier is a known value
func (t OrgTier) IsValid() bool {
	switch t {
	case OrgTierStandard, OrgTierPremium:
		return true
	default:
		return false
	}
}

// IsPremium reports whether the tier receives premium SLA treatment.
func (t OrgTier) IsPremium() bool {
	return t == OrgTierPremium
}

// ParseOrgTier parses a tier name. The empty string maps to OrgTierStandard.
func ParseOrgTier(s string) (OrgTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return OrgTierStandard, nil
	}
	t := OrgTier(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown org tier %q", s)
	}
	return t, nil
}

// OrgContext identifies the organization a request acts on behalf of.
type OrgContext struct {
	OrgID     string  `json:"org_id"`
	Tier      OrgTier `json:"tier"`
	RequestID string  `json:"request_id,omitempty"`
	UserID    string  `json:"user_id,omitempty"`

	// Operator callers may act on global and other orgs' resources.
	Operator bool `json:"operator,omitempty"`
}

// IsPremium reports whether the organization is on the premium tier.
func (c OrgContext) IsPremium() bool {
	return c.Tier.IsPremium()
}
