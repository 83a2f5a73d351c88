// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInventory = `
capabilities:
  - id: cap-review
    key: document-review
  - key: sanctions-screening
implementations:
  - id: impl-fast
    capability: document-review
    provider: anthropic
    name: claude-haiku
    tier: fast
    cost_model: {cost_per_unit: 0.002}
  - id: impl-quality
    capability: document-review
    provider: anthropic
    name: claude-opus
    tier: quality
    cost_model: {cost_per_unit: "0.03"}
  - id: impl-screen
    capability: sanctions-screening
    provider: internal
    name: screener
    tier: fast
policies:
  - capability: document-review
    org_id: acme
    prefer: quality
    escalate_on_failure: false
  - capability: document-review
    max_cost_per_unit: 0.01
breakers:
  - capability: document-review
    implementation_id: impl-fast
    org_id: globex
`

func TestParseInventory(t *testing.T) {
	store, err := ParseInventory([]byte(testInventory))
	require.NoError(t, err)
	ctx := context.Background()

	id, err := store.CapabilityID(ctx, "document-review")
	require.NoError(t, err)
	assert.Equal(t, "cap-review", id)

	id, err = store.CapabilityID(ctx, "sanctions-screening")
	require.NoError(t, err)
	assert.Equal(t, "sanctions-screening", id, "id defaults to key")

	impls, err := store.Implementations(ctx, "cap-review", "")
	require.NoError(t, err)
	require.Len(t, impls, 2)
	assert.Equal(t, "impl-fast", impls[0].ID)
	assert.Equal(t, "cap-review", impls[0].CapabilityID)
	assert.InDelta(t, 0.002, ExtractCost(impls[0].CostModel), 1e-12)
	assert.InDelta(t, 0.03, ExtractCost(impls[1].CostModel), 1e-12)

	policies, err := store.SelectionPolicies(ctx, "cap-review", "acme")
	require.NoError(t, err)
	assert.Len(t, policies, 2)

	open, err := store.OpenBreakers(ctx, "cap-review", "globex")
	require.NoError(t, err)
	assert.Equal(t, []string{"impl-fast"}, open)

	open, err = store.OpenBreakers(ctx, "cap-review", "acme")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestParseInventory_DrivesSelection(t *testing.T) {
	store, err := ParseInventory([]byte(testInventory))
	require.NoError(t, err)
	sel := newTestSelector(store)
	ctx := context.Background()

	// acme prefers quality and never escalates
	got, err := sel.Select(ctx, Request{CapabilityKey: "document-review", OrgID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "impl-quality", got.Implementation.ID)

	// global policy caps cost at 0.01, which leaves only the fast tier
	got, err = sel.Select(ctx, Request{CapabilityKey: "document-review", OrgID: "initech"})
	require.NoError(t, err)
	assert.Equal(t, "impl-fast", got.Implementation.ID)

	// globex has the fast implementation tripped; quality is over the ceiling
	_, err = sel.Select(ctx, Request{CapabilityKey: "document-review", OrgID: "globex"})
	assert.ErrorIs(t, err, ErrNoImplementationAvailable)
}

func TestParseInventory_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", "capabilities: [\n"},
		{"unknown capability", "implementations:\n  - id: x\n    capability: nope\n    tier: fast\n"},
		{"bad tier", "capabilities:\n  - key: a\nimplementations:\n  - id: x\n    capability: a\n    tier: turbo\n"},
		{"duplicate key", "capabilities:\n  - key: a\n  - key: a\n"},
		{"policy for unknown capability", "policies:\n  - capability: nope\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInventory([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testInventory), 0o600))

	store, err := LoadInventory(path)
	require.NoError(t, err)
	assert.Len(t, store.Capabilities(), 2)

	_, err = LoadInventory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
