// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import "context"

// Store is the read/write contract the selector needs from the policy and
// inventory store. orgID "" means global scope only.
type Store interface {
	// CapabilityID resolves a capability key. Returns ErrCapabilityNotFound
	// when the key is not registered.
	CapabilityID(ctx context.Context, key string) (string, error)

	// SelectionPolicies returns the org-scoped and global policy rows for
	// the capability.
	SelectionPolicies(ctx context.Context, capabilityID, orgID string) ([]SelectionPolicy, error)

	// Implementations returns global and org-scoped implementations in
	// registration order.
	Implementations(ctx context.Context, capabilityID, orgID string) ([]Implementation, error)

	// OpenBreakers returns ids of implementations whose breaker is open,
	// from global and org-scoped breaker rows.
	OpenBreakers(ctx context.Context, capabilityID, orgID string) ([]string, error)

	// WriteSelectionLog appends one audit record.
	WriteSelectionLog(ctx context.Context, log *SelectionLog) error
}

// BreakerReader is satisfied by the circuit breaker registry and lets an
// in-memory store read live breaker state.
type BreakerReader interface {
	OpenImplementations(ctx context.Context, capabilityID, orgID string) ([]string, error)
}
