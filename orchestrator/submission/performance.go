// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"sort"
	"sync"
	"time"

	"complianceflow/platform/orchestrator/analytics"
)

// PerformanceTracker keeps a rolling duration aggregate per agent. It is
// informational only and never consulted for routing.
type PerformanceTracker interface {
	Record(agent string, d time.Duration) analytics.AgentPerformance
	Snapshot() []analytics.AgentPerformance
}

// AgentPerformanceTracker is the in-memory PerformanceTracker. Each agent's
// aggregate has its own lock.
type AgentPerformanceTracker struct {
	stats sync.Map // agent name -> *agentStats
}

type agentStats struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// NewAgentPerformanceTracker creates an empty tracker.
func NewAgentPerformanceTracker() *AgentPerformanceTracker {
	return &AgentPerformanceTracker{}
}

// Record adds one run of agent and returns the updated aggregate.
func (t *AgentPerformanceTracker) Record(agent string, d time.Duration) analytics.AgentPerformance {
	v, _ := t.stats.LoadOrStore(agent, &agentStats{})
	s := v.(*agentStats)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.total += d
	return s.snapshot(agent)
}

// Snapshot returns every agent's aggregate sorted by agent name.
func (t *AgentPerformanceTracker) Snapshot() []analytics.AgentPerformance {
	out := []analytics.AgentPerformance{}
	t.stats.Range(func(k, v interface{}) bool {
		s := v.(*agentStats)
		s.mu.Lock()
		out = append(out, s.snapshot(k.(string)))
		s.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

func (s *agentStats) snapshot(agent string) analytics.AgentPerformance {
	p := analytics.AgentPerformance{
		Agent:         agent,
		Count:         s.count,
		TotalDuration: s.total,
		MinDuration:   s.min,
		MaxDuration:   s.max,
	}
	if s.count > 0 {
		p.AvgDuration = s.total / time.Duration(s.count)
	}
	return p
}
