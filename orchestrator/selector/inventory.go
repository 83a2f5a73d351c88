// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Inventory is the on-disk description of capabilities, implementations,
// policies, and statically opened breakers.
//
//	capabilities:
//	  - id: cap-review
//	    key: document-review
//	implementations:
//	  - id: impl-haiku
//	    capability: document-review
//	    provider: anthropic
//	    name: claude-haiku
//	    tier: fast
//	    cost_model: {cost_per_unit: 0.002}
//	policies:
//	  - capability: document-review
//	    org_id: acme
//	    prefer: quality
//	    escalate_on_failure: false
type Inventory struct {
	Capabilities    []Capability              `yaml:"capabilities"`
	Implementations []InventoryImplementation `yaml:"implementations"`
	Policies        []InventoryPolicy         `yaml:"policies"`
	Breakers        []InventoryBreaker        `yaml:"breakers"`
}

// InventoryImplementation references its capability by key.
type InventoryImplementation struct {
	Implementation `yaml:",inline"`
	Capability     string `yaml:"capability"`
}

// InventoryPolicy is a policy row keyed by capability key.
type InventoryPolicy struct {
	Capability        string   `yaml:"capability"`
	OrgID             string   `yaml:"org_id"`
	Prefer            string   `yaml:"prefer"`
	EscalateOnFailure *bool    `yaml:"escalate_on_failure"`
	MaxCostPerUnit    *float64 `yaml:"max_cost_per_unit"`
}

// InventoryBreaker is a breaker opened at load time.
type InventoryBreaker struct {
	Capability       string `yaml:"capability"`
	ImplementationID string `yaml:"implementation_id"`
	OrgID            string `yaml:"org_id"`
}

// LoadInventory reads an inventory YAML file into a MemoryStore.
func LoadInventory(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory builds a MemoryStore from inventory YAML.
func ParseInventory(data []byte) (*MemoryStore, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	return inv.Build()
}

// Build registers the inventory into a new MemoryStore.
func (inv Inventory) Build() (*MemoryStore, error) {
	store := NewMemoryStore()
	ids := make(map[string]string, len(inv.Capabilities))

	for _, c := range inv.Capabilities {
		if c.ID == "" {
			c.ID = c.Key
		}
		if err := store.AddCapability(c); err != nil {
			return nil, err
		}
		ids[c.Key] = c.ID
	}

	resolve := func(key, what string) (string, error) {
		id, ok := ids[key]
		if !ok {
			return "", fmt.Errorf("%s references unknown capability %q", what, key)
		}
		return id, nil
	}

	for _, ii := range inv.Implementations {
		capID, err := resolve(ii.Capability, "implementation "+ii.ID)
		if err != nil {
			return nil, err
		}
		impl := ii.Implementation
		impl.CapabilityID = capID
		if err := store.AddImplementation(impl); err != nil {
			return nil, err
		}
	}

	for _, p := range inv.Policies {
		capID, err := resolve(p.Capability, "policy")
		if err != nil {
			return nil, err
		}
		cfg := PolicyConfig{
			Prefer:            Tier(p.Prefer),
			EscalateOnFailure: p.EscalateOnFailure,
			MaxCostPerUnit:    p.MaxCostPerUnit,
		}
		if err := store.AddPolicy(capID, p.OrgID, cfg); err != nil {
			return nil, err
		}
	}

	for _, b := range inv.Breakers {
		capID, err := resolve(b.Capability, "breaker")
		if err != nil {
			return nil, err
		}
		store.OpenBreaker(capID, b.ImplementationID, b.OrgID)
	}

	return store, nil
}
