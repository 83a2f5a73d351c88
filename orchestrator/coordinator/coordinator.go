// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"complianceflow/platform/orchestrator/analytics"
	"complianceflow/platform/shared/logger"
)

// DefaultTimeout bounds one coordination round when the caller sets none.
const DefaultTimeout = 30 * time.Second

// Coordinator fans a set of agent requests out concurrently and synthesizes
// their answers into one verdict.
type Coordinator struct {
	agentsMu sync.RWMutex
	agents   map[string]Agent

	timeout time.Duration
	logger  *logger.Logger
	sink    analytics.Sink
	now     func() time.Time

	metricsMu sync.Mutex
	metrics   analytics.CoordinatorMetrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithSink sets the analytics sink that receives metric snapshots.
func WithSink(s analytics.Sink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithDefaultTimeout sets the per-round timeout used when Coordinate gets none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator with the given agents registered.
func New(agents []Agent, opts ...Option) *Coordinator {
	c := &Coordinator{
		agents:  make(map[string]Agent),
		timeout: DefaultTimeout,
		logger:  logger.New("coordinator"),
		sink:    analytics.NopSink{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, a := range agents {
		c.Register(a)
	}
	return c
}

// Register adds or replaces an agent by name.
func (c *Coordinator) Register(a Agent) {
	c.agentsMu.Lock()
	defer c.agentsMu.Unlock()
	c.agents[a.Name()] = a
}

// Agents returns the registered agent names, sorted.
func (c *Coordinator) Agents() []string {
	c.agentsMu.RLock()
	defer c.agentsMu.RUnlock()
	names := make([]string, 0, len(c.agents))
	for name := range c.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Coordinator) agent(name string) (Agent, bool) {
	c.agentsMu.RLock()
	defer c.agentsMu.RUnlock()
	a, ok := c.agents[name]
	return a, ok
}

type callOptions struct {
	timeout time.Duration
}

// Timeout returns the default bound for one Coordinate call.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// CallOption tunes a single Coordinate call.
type CallOption func(*callOptions)

// WithTimeout bounds one Coordinate call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Coordinate invokes every request concurrently and synthesizes a verdict.
// It never returns an error: a coordination failure yields a degraded
// NEEDS_HUMAN_REVIEW result with zero confidence.
func (c *Coordinator) Coordinate(ctx context.Context, requests []Request, opts ...CallOption) (res CoordinationResult) {
	start := c.now()
	co := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&co)
	}

	var outcomes []Outcome
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("coordination panic: %v", r)
			c.logger.Error("", "", "Coordination failed, degrading to human review", map[string]interface{}{
				"error":  err.Error(),
				"agents": len(requests),
			})
			res = degradedResult(err, outcomes)
			res.Duration = c.now().Sub(start)
			c.record(nil, true)
		}
	}()

	if co.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, co.timeout)
		defer cancel()
	}

	outcomes = c.dispatch(ctx, requests)
	res = Synthesize(outcomes)
	res.Duration = c.now().Sub(start)
	c.record(outcomes, false)

	c.logger.InfoWithDuration("", "", "Coordination complete", res.Duration, map[string]interface{}{
		"final_decision": string(res.FinalDecision),
		"confidence":     res.Confidence,
		"succeeded":      res.Succeeded,
		"failed":         res.Failed,
	})
	return res
}

type indexedOutcome struct {
	idx     int
	outcome Outcome
}

// dispatch runs every request in its own goroutine. The channel is buffered
// so late agents never block after the deadline has passed.
func (c *Coordinator) dispatch(ctx context.Context, requests []Request) []Outcome {
	if len(requests) == 0 {
		return []Outcome{}
	}

	results := make(chan indexedOutcome, len(requests))
	for i, req := range requests {
		go func(i int, req Request) {
			results <- indexedOutcome{idx: i, outcome: c.invoke(ctx, req)}
		}(i, req)
	}

	return gather(ctx, requests, results)
}

// gather collects one outcome per request. When ctx ends first, outcomes
// already delivered are kept and the rest are marked timed out.
func gather(ctx context.Context, requests []Request, results <-chan indexedOutcome) []Outcome {
	outcomes := make([]Outcome, len(requests))
	done := make([]bool, len(requests))
	start := time.Now()
	for remaining := len(requests); remaining > 0; {
		select {
		case r := <-results:
			outcomes[r.idx] = r.outcome
			done[r.idx] = true
			remaining--
		case <-ctx.Done():
			for drained := false; !drained && remaining > 0; {
				select {
				case r := <-results:
					outcomes[r.idx] = r.outcome
					done[r.idx] = true
					remaining--
				default:
					drained = true
				}
			}
			elapsed := time.Since(start)
			for i, req := range requests {
				if !done[i] {
					outcomes[i] = failed(req.Agent, fmt.Errorf("%w: %v", ErrAgentTimeout, ctx.Err()), elapsed)
				}
			}
			return outcomes
		}
	}
	return outcomes
}

func (c *Coordinator) invoke(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = failed(req.Agent, fmt.Errorf("%w: %v", ErrAgentPanicked, r), time.Since(start))
		}
	}()

	a, ok := c.agent(req.Agent)
	if !ok {
		return failed(req.Agent, fmt.Errorf("%w: %s", ErrUnknownAgent, req.Agent), 0)
	}

	result, err := a.Invoke(ctx, req)
	d := time.Since(start)
	if err != nil {
		c.logger.Warn("", "", "Agent invocation failed", map[string]interface{}{
			"agent": req.Agent,
			"error": err.Error(),
		})
		return failed(req.Agent, err, d)
	}
	if result == nil {
		return failed(req.Agent, ErrEmptyResult, d)
	}
	if result.Agent == "" {
		result.Agent = req.Agent
	}
	return Outcome{Agent: req.Agent, Result: result, Duration: d}
}

// record folds one round into the rolling metrics and forwards a snapshot.
func (c *Coordinator) record(outcomes []Outcome, degraded bool) {
	c.metricsMu.Lock()
	m := &c.metrics
	m.Coordinations++
	if degraded {
		m.Degraded++
	}
	for _, o := range outcomes {
		m.TotalInvocations++
		if o.OK() {
			m.SuccessfulInvocations++
		} else {
			m.FailedInvocations++
		}
		m.AverageLatency += (o.Duration - m.AverageLatency) / time.Duration(m.TotalInvocations)
	}
	snapshot := *m
	c.metricsMu.Unlock()

	c.sink.RecordCoordinatorMetrics(snapshot)
}

// Metrics returns a snapshot of the rolling counters.
func (c *Coordinator) Metrics() analytics.CoordinatorMetrics {
	c.metricsMu.Lock()
	defer c.metricsMu.Unlock()
	return c.metrics
}
