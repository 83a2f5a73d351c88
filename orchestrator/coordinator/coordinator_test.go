// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complianceflow/platform/orchestrator/analytics"
	"complianceflow/platform/shared/logger"
	"complianceflow/platform/shared/types"
)

func floatPtr(f float64) *float64 { return &f }

func decides(name string, d types.Decision, confidence *float64) Agent {
	return AgentFunc{AgentName: name, Fn: func(ctx context.Context, req Request) (*Result, error) {
		return &Result{Decision: d, Confidence: confidence, Rationale: name + " says " + string(d)}, nil
	}}
}

func failing(name string) Agent {
	return AgentFunc{AgentName: name, Fn: func(ctx context.Context, req Request) (*Result, error) {
		return nil, errors.New("backend unavailable")
	}}
}

func requestsFor(names ...string) []Request {
	reqs := make([]Request, len(names))
	for i, n := range names {
		reqs[i] = Request{Agent: n}
	}
	return reqs
}

func newTestCoordinator(agents ...Agent) *Coordinator {
	return New(agents, WithLogger(logger.Nop()))
}

func TestCoordinate_VoteSynthesis(t *testing.T) {
	tests := []struct {
		name       string
		agents     []Agent
		want       types.Verdict
		succeeded  int
		failed     int
		confidence float64
	}{
		{
			name: "two approvals outvote one rejection",
			agents: []Agent{
				decides("a", types.DecisionApprove, nil),
				decides("b", types.DecisionApprove, nil),
				decides("c", types.DecisionReject, nil),
			},
			want:       types.VerdictApproved,
			succeeded:  3,
			confidence: 0.5,
		},
		{
			name: "rejections outnumber approvals",
			agents: []Agent{
				decides("a", types.DecisionApprove, nil),
				decides("b", types.DecisionReject, nil),
				decides("c", types.DecisionReject, nil),
			},
			want:       types.VerdictRejected,
			succeeded:  3,
			confidence: 0.5,
		},
		{
			name: "single rejection with failed siblings",
			agents: []Agent{
				decides("a", types.DecisionReject, floatPtr(0.9)),
				failing("b"),
				failing("c"),
			},
			want:       types.VerdictRejected,
			succeeded:  1,
			failed:     2,
			confidence: 0.9,
		},
		{
			name:       "zero successes",
			agents:     []Agent{failing("a"), failing("b")},
			want:       types.VerdictNeedsHumanReview,
			failed:     2,
			confidence: 0,
		},
		{
			name: "tie goes to approval",
			agents: []Agent{
				decides("a", types.DecisionApprove, floatPtr(0.8)),
				decides("b", types.DecisionReject, floatPtr(0.6)),
			},
			want:       types.VerdictApproved,
			succeeded:  2,
			confidence: 0.7,
		},
		{
			name: "only needs review",
			agents: []Agent{
				decides("a", types.DecisionNeedsReview, floatPtr(0.3)),
			},
			want:       types.VerdictNeedsHumanReview,
			succeeded:  1,
			confidence: 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(tt.agents...)
			names := make([]string, len(tt.agents))
			for i, a := range tt.agents {
				names[i] = a.Name()
			}

			res := c.Coordinate(context.Background(), requestsFor(names...))

			assert.Equal(t, tt.want, res.FinalDecision)
			assert.Equal(t, tt.succeeded, res.Succeeded)
			assert.Equal(t, tt.failed, res.Failed)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.False(t, res.Degraded)
			assert.Len(t, res.Outcomes, len(tt.agents))
			assert.NotEmpty(t, res.Rationale)
			assert.NotEmpty(t, res.RecommendedActions)
		})
	}
}

func TestCoordinate_OutcomesKeepRequestOrder(t *testing.T) {
	c := newTestCoordinator(
		decides("a", types.DecisionApprove, nil),
		failing("b"),
		decides("c", types.DecisionReject, nil),
	)

	res := c.Coordinate(context.Background(), requestsFor("a", "b", "c"))

	require.Len(t, res.Outcomes, 3)
	assert.Equal(t, "a", res.Outcomes[0].Agent)
	assert.True(t, res.Outcomes[0].OK())
	assert.Equal(t, "a", res.Outcomes[0].Result.Agent)
	assert.Equal(t, "b", res.Outcomes[1].Agent)
	assert.False(t, res.Outcomes[1].OK())
	assert.Contains(t, res.Outcomes[1].Error, "backend unavailable")
	assert.Equal(t, "c", res.Outcomes[2].Agent)
}

func TestCoordinate_UnknownAgentFails(t *testing.T) {
	c := newTestCoordinator(decides("a", types.DecisionApprove, nil))

	res := c.Coordinate(context.Background(), requestsFor("a", "ghost"))

	assert.Equal(t, types.VerdictApproved, res.FinalDecision)
	assert.Equal(t, 1, res.Failed)
	assert.ErrorIs(t, res.Outcomes[1].Err, ErrUnknownAgent)
}

func TestCoordinate_PanickingAgentIsIsolated(t *testing.T) {
	c := newTestCoordinator(
		decides("a", types.DecisionApprove, nil),
		AgentFunc{AgentName: "boom", Fn: func(ctx context.Context, req Request) (*Result, error) {
			panic("nil map")
		}},
	)

	res := c.Coordinate(context.Background(), requestsFor("a", "boom"))

	assert.Equal(t, types.VerdictApproved, res.FinalDecision)
	assert.ErrorIs(t, res.Outcomes[1].Err, ErrAgentPanicked)
	assert.False(t, res.Degraded)
}

func TestCoordinate_EmptyResultIsFailure(t *testing.T) {
	c := newTestCoordinator(AgentFunc{AgentName: "silent", Fn: func(ctx context.Context, req Request) (*Result, error) {
		return nil, nil
	}})

	res := c.Coordinate(context.Background(), requestsFor("silent"))

	assert.Equal(t, types.VerdictNeedsHumanReview, res.FinalDecision)
	assert.ErrorIs(t, res.Outcomes[0].Err, ErrEmptyResult)
}

func TestCoordinate_TimeoutMarksSlowAgentsFailed(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	hung := AgentFunc{AgentName: "hung", Fn: func(ctx context.Context, req Request) (*Result, error) {
		<-release
		return &Result{Decision: types.DecisionApprove}, nil
	}}
	c := newTestCoordinator(decides("fast", types.DecisionReject, nil), hung)

	start := time.Now()
	res := c.Coordinate(context.Background(), requestsFor("fast", "hung"), WithTimeout(50*time.Millisecond))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, types.VerdictRejected, res.FinalDecision)
	assert.Equal(t, 1, res.Failed)
	assert.ErrorIs(t, res.Outcomes[1].Err, ErrAgentTimeout)
	assert.True(t, res.Outcomes[0].OK())
}

func TestGather_KeepsDeliveredOutcomesAfterDeadline(t *testing.T) {
	requests := []Request{{Agent: "brand"}, {Agent: "legal"}, {Agent: "privacy"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Repeated so a random select choice between the ready result and the
	// expired context would surface.
	for i := 0; i < 50; i++ {
		results := make(chan indexedOutcome, len(requests))
		results <- indexedOutcome{idx: 0, outcome: Outcome{Agent: "brand", Result: &Result{Agent: "brand", Decision: types.DecisionApprove}}}
		results <- indexedOutcome{idx: 2, outcome: Outcome{Agent: "privacy", Result: &Result{Agent: "privacy", Decision: types.DecisionReject}}}

		outcomes := gather(ctx, requests, results)

		require.Len(t, outcomes, 3)
		assert.True(t, outcomes[0].OK(), "brand finished before the deadline")
		assert.True(t, outcomes[2].OK(), "privacy finished before the deadline")
		assert.ErrorIs(t, outcomes[1].Err, ErrAgentTimeout)
	}
}

func TestCoordinate_NoRequests(t *testing.T) {
	c := newTestCoordinator()

	res := c.Coordinate(context.Background(), nil)

	assert.Equal(t, types.VerdictNeedsHumanReview, res.FinalDecision)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Outcomes)
}

func TestCoordinate_AgentReceivesRequest(t *testing.T) {
	var got Request
	c := newTestCoordinator(AgentFunc{AgentName: "echo", Fn: func(ctx context.Context, req Request) (*Result, error) {
		got = req
		return &Result{Decision: types.DecisionApprove}, nil
	}})

	c.Coordinate(context.Background(), []Request{{
		Agent:   "echo",
		Input:   map[string]interface{}{"content": "ad copy"},
		Context: map[string]interface{}{"submission_id": "sub-1"},
	}})

	assert.Equal(t, "ad copy", got.Input["content"])
	assert.Equal(t, "sub-1", got.Context["submission_id"])
}

type recordingSink struct {
	analytics.NopSink
	mu      sync.Mutex
	metrics []analytics.CoordinatorMetrics
}

func (s *recordingSink) RecordCoordinatorMetrics(m analytics.CoordinatorMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func TestCoordinate_RollingMetrics(t *testing.T) {
	sink := &recordingSink{}
	c := New([]Agent{
		decides("a", types.DecisionApprove, nil),
		failing("b"),
	}, WithLogger(logger.Nop()), WithSink(sink))

	c.Coordinate(context.Background(), requestsFor("a", "b"))
	c.Coordinate(context.Background(), requestsFor("a"))

	m := c.Metrics()
	assert.Equal(t, int64(2), m.Coordinations)
	assert.Equal(t, int64(3), m.TotalInvocations)
	assert.Equal(t, int64(2), m.SuccessfulInvocations)
	assert.Equal(t, int64(1), m.FailedInvocations)
	assert.GreaterOrEqual(t, m.AverageLatency, time.Duration(0))

	require.Len(t, sink.metrics, 2)
	assert.Equal(t, m, sink.metrics[1])
}

func TestCoordinate_Concurrent(t *testing.T) {
	c := newTestCoordinator(
		decides("a", types.DecisionApprove, nil),
		decides("b", types.DecisionReject, nil),
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.Coordinate(context.Background(), requestsFor("a", "b"))
			assert.Equal(t, types.VerdictApproved, res.FinalDecision)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), c.Metrics().Coordinations)
	assert.Equal(t, int64(40), c.Metrics().TotalInvocations)
}

func TestRegisterAndAgents(t *testing.T) {
	c := newTestCoordinator(decides("z", types.DecisionApprove, nil))
	c.Register(decides("a", types.DecisionApprove, nil))
	c.Register(decides("z", types.DecisionReject, nil))

	assert.Equal(t, []string{"a", "z"}, c.Agents())

	res := c.Coordinate(context.Background(), requestsFor("z"))
	assert.Equal(t, types.VerdictRejected, res.FinalDecision)
}

func TestSynthesize_RecommendedActions(t *testing.T) {
	ok := func(agent string, d types.Decision, rationale string) Outcome {
		return Outcome{Agent: agent, Result: &Result{Agent: agent, Decision: d, Rationale: rationale}}
	}

	approved := Synthesize([]Outcome{ok("a", types.DecisionApprove, "")})
	assert.Equal(t, []string{"Proceed with submission"}, approved.RecommendedActions)

	rejected := Synthesize([]Outcome{ok("risk", types.DecisionReject, "missing disclaimer")})
	require.NotEmpty(t, rejected.RecommendedActions)
	assert.Contains(t, rejected.RecommendedActions[0], "risk: missing disclaimer")

	review := Synthesize([]Outcome{failed("a", errors.New("down"), 0)})
	assert.Equal(t, []string{"Escalate to a human reviewer", "Re-run failed agents: a"}, review.RecommendedActions)
	assert.Contains(t, review.Rationale, "1 agents failed")
}

func TestSynthesize_ClampsConfidence(t *testing.T) {
	res := Synthesize([]Outcome{
		{Agent: "a", Result: &Result{Decision: types.DecisionApprove, Confidence: floatPtr(1.7)}},
		{Agent: "b", Result: &Result{Decision: types.DecisionApprove, Confidence: floatPtr(-2)}},
	})
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestDegradedResult(t *testing.T) {
	res := degradedResult(fmt.Errorf("synthesis exploded"), nil)

	assert.Equal(t, types.VerdictNeedsHumanReview, res.FinalDecision)
	assert.Zero(t, res.Confidence)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Rationale, "synthesis exploded")
	assert.Equal(t, []string{"Escalate to a human reviewer"}, res.RecommendedActions)
}
