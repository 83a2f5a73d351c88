// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type breakerRow struct {
	capabilityID     string
	implementationID string
	orgID            string
}

// MemoryStore is an in-process Store, loaded from an inventory file or
// populated directly. It keeps selection logs in memory.
type MemoryStore struct {
	mu              sync.RWMutex
	capabilities    map[string]Capability
	policies        []SelectionPolicy
	implementations []Implementation
	breakers        map[breakerRow]bool
	breakerReader   BreakerReader
	logs            []SelectionLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		capabilities: make(map[string]Capability),
		breakers:     make(map[breakerRow]bool),
	}
}

// AddCapability registers a capability. Keys are unique.
func (s *MemoryStore) AddCapability(c Capability) error {
	if c.Key == "" || c.ID == "" {
		return fmt.Errorf("capability requires id and key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.capabilities[c.Key]; exists {
		return fmt.Errorf("capability %q already registered", c.Key)
	}
	s.capabilities[c.Key] = c
	return nil
}

// AddImplementation registers an implementation; registration order is kept.
func (s *MemoryStore) AddImplementation(impl Implementation) error {
	if impl.ID == "" || impl.CapabilityID == "" {
		return fmt.Errorf("implementation requires id and capability_id")
	}
	if !impl.Tier.IsValid() {
		return fmt.Errorf("implementation %s: unknown tier %q", impl.ID, impl.Tier)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.implementations = append(s.implementations, impl)
	return nil
}

// AddPolicy stores a policy for a capability. The config is kept as given
// and only validated at selection time.
func (s *MemoryStore) AddPolicy(capabilityID, orgID string, config interface{}) error {
	var raw json.RawMessage
	switch c := config.(type) {
	case json.RawMessage:
		raw = c
	case []byte:
		raw = json.RawMessage(c)
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal policy config: %w", err)
		}
		raw = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = append(s.policies, SelectionPolicy{
		CapabilityID: capabilityID,
		OrgID:        orgID,
		Config:       raw,
	})
	return nil
}

// OpenBreaker marks a breaker open. orgID "" scopes it globally.
func (s *MemoryStore) OpenBreaker(capabilityID, implementationID, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers[breakerRow{capabilityID, implementationID, orgID}] = true
}

// CloseBreaker removes an open breaker row.
func (s *MemoryStore) CloseBreaker(capabilityID, implementationID, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, breakerRow{capabilityID, implementationID, orgID})
}

// SetBreakerReader makes OpenBreakers delegate to a live breaker registry.
func (s *MemoryStore) SetBreakerReader(r BreakerReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakerReader = r
}

// Capabilities returns all registered capabilities.
func (s *MemoryStore) Capabilities() []Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Capability, 0, len(s.capabilities))
	for _, c := range s.capabilities {
		out = append(out, c)
	}
	return out
}

// SelectionLogs returns a copy of the written audit records.
func (s *MemoryStore) SelectionLogs() []SelectionLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SelectionLog, len(s.logs))
	copy(out, s.logs)
	return out
}

// CapabilityID implements Store.
func (s *MemoryStore) CapabilityID(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.capabilities[key]
	if !ok {
		return "", ErrCapabilityNotFound
	}
	return c.ID, nil
}

// SelectionPolicies implements Store.
func (s *MemoryStore) SelectionPolicies(ctx context.Context, capabilityID, orgID string) ([]SelectionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []SelectionPolicy
	for _, p := range s.policies {
		if p.CapabilityID != capabilityID {
			continue
		}
		if p.OrgID == "" || (orgID != "" && p.OrgID == orgID) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Implementations implements Store.
func (s *MemoryStore) Implementations(ctx context.Context, capabilityID, orgID string) ([]Implementation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Implementation
	for _, impl := range s.implementations {
		if impl.CapabilityID != capabilityID {
			continue
		}
		if impl.OrgID == "" || (orgID != "" && impl.OrgID == orgID) {
			out = append(out, impl)
		}
	}
	return out, nil
}

// OpenBreakers implements Store.
func (s *MemoryStore) OpenBreakers(ctx context.Context, capabilityID, orgID string) ([]string, error) {
	s.mu.RLock()
	reader := s.breakerReader
	var out []string
	for row := range s.breakers {
		if row.capabilityID != capabilityID {
			continue
		}
		if row.orgID == "" || (orgID != "" && row.orgID == orgID) {
			out = append(out, row.implementationID)
		}
	}
	s.mu.RUnlock()

	if reader != nil {
		live, err := reader.OpenImplementations(ctx, capabilityID, orgID)
		if err != nil {
			return nil, err
		}
		out = append(out, live...)
	}
	return out, nil
}

// WriteSelectionLog implements Store.
func (s *MemoryStore) WriteSelectionLog(ctx context.Context, log *SelectionLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}
