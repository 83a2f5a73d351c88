// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tier is the coarse quality/cost class of an implementation.
type Tier string

const (
	TierFast    Tier = "fast"
	TierQuality Tier = "quality"
)

// IsValid returns true for fast and quality.
func (t Tier) IsValid() bool {
	return t == TierFast || t == TierQuality
}

// Other returns the opposite tier; used as the escalation target.
func (t Tier) Other() Tier {
	if t == TierQuality {
		return TierFast
	}
	return TierQuality
}

// Capability is a named unit of routable work.
type Capability struct {
	ID          string `json:"id" yaml:"id"`
	Key         string `json:"capability_key" yaml:"key"`
	Name        string `json:"name,omitempty" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Implementation is a concrete backend for a capability.
// An empty OrgID means the implementation is registered globally.
type Implementation struct {
	ID           string                 `json:"id" yaml:"id"`
	CapabilityID string                 `json:"capability_id" yaml:"-"`
	Provider     string                 `json:"provider" yaml:"provider"`
	Name         string                 `json:"name" yaml:"name"`
	Tier         Tier                   `json:"tier" yaml:"tier"`
	CostModel    map[string]interface{} `json:"cost_model,omitempty" yaml:"cost_model"`
	OrgID        string                 `json:"org_id,omitempty" yaml:"org_id"`
}

// Label returns "<provider>/<name>".
func (i Implementation) Label() string {
	return fmt.Sprintf("%s/%s", i.Provider, i.Name)
}

// SelectionPolicy is a stored policy row. Config is kept raw so that
// malformed rows can be detected at selection time.
type SelectionPolicy struct {
	CapabilityID string          `json:"capability_id"`
	OrgID        string          `json:"org_id,omitempty"`
	Config       json.RawMessage `json:"config"`
}

// PolicyConfig is the decoded form of SelectionPolicy.Config.
type PolicyConfig struct {
	Prefer            Tier     `json:"prefer,omitempty"`
	EscalateOnFailure *bool    `json:"escalate_on_failure,omitempty"`
	MaxCostPerUnit    *float64 `json:"max_cost_per_unit,omitempty"`
}

// PolicySource records where the effective policy came from.
type PolicySource string

const (
	PolicySourceOrg     PolicySource = "org"
	PolicySourceGlobal  PolicySource = "global"
	PolicySourceDefault PolicySource = "default"
)

// EffectivePolicy is the resolved policy used for one selection.
type EffectivePolicy struct {
	Prefer            Tier         `json:"prefer"`
	EscalateOnFailure bool         `json:"escalate_on_failure"`
	MaxCostPerUnit    *float64     `json:"max_cost_per_unit,omitempty"`
	Source            PolicySource `json:"source"`
}

// DefaultPolicy is applied when no policy row exists.
func DefaultPolicy() EffectivePolicy {
	return EffectivePolicy{
		Prefer:            TierFast,
		EscalateOnFailure: true,
		Source:            PolicySourceDefault,
	}
}

// Selection log statuses
const (
	StatusSelected = "selected"
)

// SelectionLog is the append-only audit record written once per successful
// selection.
type SelectionLog struct {
	ID               string                 `json:"id"`
	OrgID            string                 `json:"org_id,omitempty"`
	CapabilityID     string                 `json:"capability_id"`
	CapabilityKey    string                 `json:"capability_key"`
	ImplementationID string                 `json:"implementation_id"`
	FallbackChain    []Tier                 `json:"fallback_chain"`
	ReasonCodes      []string               `json:"reason_codes"`
	Context          map[string]interface{} `json:"context,omitempty"`
	EstimatedCost    float64                `json:"estimated_cost"`
	Status           string                 `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
}

// Validate checks the log payload before it is written.
func (l *SelectionLog) Validate() error {
	switch {
	case l == nil:
		return fmt.Errorf("%w: nil log", ErrInvalidSelectionLog)
	case l.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidSelectionLog)
	case l.CapabilityID == "":
		return fmt.Errorf("%w: missing capability_id", ErrInvalidSelectionLog)
	case l.ImplementationID == "":
		return fmt.Errorf("%w: missing implementation_id", ErrInvalidSelectionLog)
	case len(l.FallbackChain) == 0 || len(l.FallbackChain) > 2:
		return fmt.Errorf("%w: fallback_chain must have 1 or 2 tiers, got %d", ErrInvalidSelectionLog, len(l.FallbackChain))
	case l.Status == "":
		return fmt.Errorf("%w: missing status", ErrInvalidSelectionLog)
	}
	for _, t := range l.FallbackChain {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown tier %q in fallback_chain", ErrInvalidSelectionLog, t)
		}
	}
	return nil
}

// Escalated reports whether the selection moved past the preferred tier.
func (l *SelectionLog) Escalated() bool {
	return len(l.FallbackChain) > 1
}

// Request is the input to Select.
type Request struct {
	CapabilityKey string                 `json:"capability_key"`
	OrgID         string                 `json:"org_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

// RequestsQuality reports whether the caller context explicitly asks for
// the quality tier.
func (r Request) RequestsQuality() bool {
	if r.Context == nil {
		return false
	}
	if tier, ok := r.Context["tier"].(string); ok && Tier(tier) == TierQuality {
		return true
	}
	if q, ok := r.Context["requires_quality"].(bool); ok && q {
		return true
	}
	return false
}

// Selection is the result of a successful Select call.
type Selection struct {
	Implementation Implementation  `json:"implementation"`
	Policy         EffectivePolicy `json:"policy"`
	Log            SelectionLog    `json:"selection_log"`
}
