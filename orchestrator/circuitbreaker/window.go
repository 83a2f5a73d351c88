// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"context"
	"sync"
	"time"
)

// FailureWindow counts failures per key over a sliding window.
type FailureWindow interface {
	// Add records a failure at `at` and returns the number of failures
	// within (at-window, at].
	Add(ctx context.Context, key Key, at time.Time, window time.Duration) (int, error)
	// Clear drops all failures for key.
	Clear(ctx context.Context, key Key) error
}

// MemoryWindow is an in-process FailureWindow.
type MemoryWindow struct {
	mu       sync.Mutex
	failures map[Key][]time.Time
}

// NewMemoryWindow creates an empty in-memory window.
func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{failures: make(map[Key][]time.Time)}
}

// Add implements FailureWindow.
func (w *MemoryWindow) Add(ctx context.Context, key Key, at time.Time, window time.Duration) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := at.Add(-window)
	kept := w.failures[key][:0]
	for _, ts := range w.failures[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, at)
	w.failures[key] = kept
	return len(kept), nil
}

// Clear implements FailureWindow.
func (w *MemoryWindow) Clear(ctx context.Context, key Key) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, key)
	return nil
}
