// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists breaker state.
type Repository interface {
	// Save inserts or replaces the state for b.Key.
	Save(ctx context.Context, b *Breaker) error
	// Get returns the state for key or ErrBreakerNotFound.
	Get(ctx context.Context, key Key) (*Breaker, error)
	// ListOpen returns breakers open at now for capabilityID that apply to
	// orgID: global rows plus rows scoped to orgID. An empty capabilityID
	// matches every capability.
	ListOpen(ctx context.Context, capabilityID, orgID string, now time.Time) ([]Breaker, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu       sync.RWMutex
	breakers map[Key]Breaker
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{breakers: make(map[Key]Breaker)}
}

// Save implements Repository.
func (r *MemoryRepository) Save(ctx context.Context, b *Breaker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[b.Key] = *b
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(ctx context.Context, key Key) (*Breaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[key]
	if !ok {
		return nil, ErrBreakerNotFound
	}
	return &b, nil
}

// ListOpen implements Repository.
func (r *MemoryRepository) ListOpen(ctx context.Context, capabilityID, orgID string, now time.Time) ([]Breaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Breaker
	for key, b := range r.breakers {
		if capabilityID != "" && key.CapabilityID != capabilityID {
			continue
		}
		if key.OrgID != "" && key.OrgID != orgID {
			continue
		}
		if b.IsOpen(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}
