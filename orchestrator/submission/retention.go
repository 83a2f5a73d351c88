// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"context"
	"time"
)

// Sweep removes terminal submissions whose completion is older than the
// retention period. In-flight submissions are never removed. It returns the
// number of submissions purged.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.retention)
	purged := 0

	m.entries.Range(func(k, v interface{}) bool {
		if ctx.Err() != nil {
			return false
		}
		e := v.(*entry)
		e.mu.Lock()
		expired := !e.deleted &&
			e.sub.Status.IsTerminal() &&
			e.sub.CompletedAt != nil &&
			e.sub.CompletedAt.Before(cutoff)
		if expired {
			e.deleted = true
			m.entries.Delete(k)
			purged++
		}
		e.mu.Unlock()
		return true
	})

	if purged > 0 {
		m.logger.Info("", "", "retention sweep purged submissions", map[string]interface{}{
			"purged":    purged,
			"retention": m.retention.String(),
		})
	}
	return purged
}

// StartRetention runs Sweep every interval until ctx is done.
func (m *Manager) StartRetention(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}
