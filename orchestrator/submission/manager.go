// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"complianceflow/platform/orchestrator/analytics"
	"complianceflow/platform/orchestrator/eventbus"
	"complianceflow/platform/shared/logger"
	"complianceflow/platform/shared/types"
)

// DefaultRetention is how long terminal submissions are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Manager owns submission records and drives them from bus events.
// Every submission has its own lock; there is no lock across submissions.
type Manager struct {
	entries sync.Map // submission id -> *entry

	bus       eventbus.Bus
	tracker   PerformanceTracker
	sink      analytics.Sink
	logger    *logger.Logger
	now       func() time.Time
	newID     func() string
	retention time.Duration

	unsubscribe []func()
}

type entry struct {
	mu      sync.Mutex
	sub     *Submission
	deleted bool
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides submission id generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// WithPerformanceTracker sets the per-agent performance tracker.
func WithPerformanceTracker(t PerformanceTracker) Option {
	return func(m *Manager) { m.tracker = t }
}

// WithSink sets the analytics sink.
func WithSink(s analytics.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithRetention sets how long terminal submissions are kept.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// NewManager creates a Manager and subscribes it to workflow lifecycle
// events on bus.
func NewManager(bus eventbus.Bus, opts ...Option) (*Manager, error) {
	m := &Manager{
		bus:       bus,
		tracker:   NewAgentPerformanceTracker(),
		sink:      analytics.NopSink{},
		logger:    logger.New("submission"),
		now:       time.Now,
		newID:     uuid.NewString,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(m)
	}

	handlers := map[eventbus.Type]eventbus.Handler{
		eventbus.WorkflowStarted:        m.handleWorkflowStarted,
		eventbus.AgentCompleted:         m.handleAgentCompleted,
		eventbus.WorkflowCompleted:      m.handleWorkflowCompleted,
		eventbus.PreflightCheckComplete: m.handlePreflight,
	}
	for t, h := range handlers {
		unsubscribe, err := bus.Subscribe(t, h)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", t, err)
		}
		m.unsubscribe = append(m.unsubscribe, unsubscribe)
	}
	return m, nil
}

// Close removes the manager's bus subscriptions.
func (m *Manager) Close() {
	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.unsubscribe = nil
}

// Tracker returns the performance tracker.
func (m *Manager) Tracker() PerformanceTracker {
	return m.tracker
}

// Bus returns the event bus the manager listens on.
func (m *Manager) Bus() eventbus.Bus {
	return m.bus
}

// CreateInput describes a new submission.
type CreateInput struct {
	ID        string                 `json:"id,omitempty"`
	OrgID     string                 `json:"org_id,omitempty"`
	OrgTier   types.OrgTier          `json:"org_tier,omitempty"`
	Priority  Priority               `json:"priority,omitempty"`
	Content   map[string]interface{} `json:"content,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	RequestID string                 `json:"-"`
}

// Create stores a new submission, computes its SLA, and emits
// submission-created.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Submission, error) {
	id := in.ID
	if id == "" {
		id = m.newID()
	}
	tier := in.OrgTier
	if !tier.IsValid() {
		tier = types.OrgTierStandard
	}
	priority := ParsePriority(string(in.Priority))
	now := m.now()

	sub := &Submission{
		ID:           id,
		OrgID:        in.OrgID,
		OrgTier:      tier,
		Status:       StatusCreated,
		Priority:     priority,
		CreatedAt:    now,
		UpdatedAt:    now,
		Content:      copyMap(in.Content),
		Metadata:     copyMap(in.Metadata),
		SLA:          NewSLA(priority, tier, now),
		AgentResults: make(map[string]AgentResult),
		Issues:       []string{},
		Warnings:     []string{},
	}
	appendTimeline(sub, now, TimelineCreated, "Submission created", map[string]interface{}{
		"priority":   string(priority),
		"sla_target": sub.SLA.Target.String(),
		"deadline":   sub.SLA.Deadline,
	})

	e := &entry{sub: sub}
	e.mu.Lock()
	if _, loaded := m.entries.LoadOrStore(id, e); loaded {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSubmissionExists, id)
	}
	snapshot := sub.clone()
	e.mu.Unlock()

	m.logger.Info(in.OrgID, in.RequestID, "submission created", map[string]interface{}{
		"submission_id": id,
		"priority":      string(priority),
		"org_tier":      string(tier),
		"deadline":      sub.SLA.Deadline,
	})
	m.publish(ctx, eventbus.SubmissionCreated, id, snapshot)
	return snapshot, nil
}

// Get returns a copy of the submission.
func (m *Manager) Get(ctx context.Context, id string) (*Submission, error) {
	var out *Submission
	err := m.withEntry(id, func(sub *Submission) {
		out = sub.clone()
	})
	return out, err
}

// Timeline returns a copy of the submission's timeline.
func (m *Manager) Timeline(ctx context.Context, id string) ([]TimelineEntry, error) {
	var out []TimelineEntry
	err := m.withEntry(id, func(sub *Submission) {
		out = append([]TimelineEntry(nil), sub.Timeline...)
	})
	return out, err
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	OrgID  string
	Status Status
}

// List returns copies of matching submissions, newest first.
func (m *Manager) List(ctx context.Context, f ListFilter) []*Submission {
	out := []*Submission{}
	m.entries.Range(func(_, v interface{}) bool {
		e := v.(*entry)
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.deleted {
			return true
		}
		if f.OrgID != "" && e.sub.OrgID != f.OrgID {
			return true
		}
		if f.Status != "" && e.sub.Status != f.Status {
			return true
		}
		out = append(out, e.sub.clone())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// UpdateMetadata merges metadata into the submission. A nil value removes
// the key.
func (m *Manager) UpdateMetadata(ctx context.Context, id string, metadata map[string]interface{}) (*Submission, error) {
	var out *Submission
	err := m.withEntry(id, func(sub *Submission) {
		if sub.Metadata == nil {
			sub.Metadata = make(map[string]interface{}, len(metadata))
		}
		keys := make([]string, 0, len(metadata))
		for k, v := range metadata {
			if v == nil {
				delete(sub.Metadata, k)
			} else {
				sub.Metadata[k] = v
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		now := m.now()
		sub.UpdatedAt = now
		appendTimeline(sub, now, TimelineMetadataUpdated, "Metadata updated", map[string]interface{}{
			"keys": keys,
		})
		out = sub.clone()
	})
	return out, err
}

// Cancel flags a non-terminal submission as cancelled. Cancelling a
// terminal submission changes nothing and is not an error. Agent calls
// already in flight are not interrupted; their completions are still
// recorded.
func (m *Manager) Cancel(ctx context.Context, id, reason string) (*Submission, error) {
	var out *Submission
	var from Status
	changed := false

	err := m.withEntry(id, func(sub *Submission) {
		if sub.Status.IsTerminal() {
			out = sub.clone()
			return
		}
		from = sub.Status
		now := m.now()
		sub.Status = StatusCancelled
		sub.CancelReason = reason
		sub.CompletedAt = &now
		sub.UpdatedAt = now
		sub.SLA.Breached = now.After(sub.SLA.Deadline)
		msg := "Submission cancelled"
		if reason != "" {
			msg = fmt.Sprintf("Submission cancelled: %s", reason)
		}
		appendTimeline(sub, now, TimelineCancelled, msg, map[string]interface{}{
			"previous_status": string(from),
		})
		changed = true
		out = sub.clone()
	})
	if err != nil {
		return nil, err
	}

	if changed {
		m.logger.Info(out.OrgID, "", "submission cancelled", map[string]interface{}{
			"submission_id": id,
			"reason":        reason,
		})
		m.publish(ctx, eventbus.SubmissionStateChanged, id, StateChangedPayload{
			From:         from,
			To:           StatusCancelled,
			CurrentStage: out.CurrentStage,
		})
	}
	return out, nil
}

// RecordVerdict attaches the coordinator's synthesized decision. It does
// not change status; the workflow-completed event does that.
func (m *Manager) RecordVerdict(ctx context.Context, id string, v Verdict) (*Submission, error) {
	var out *Submission
	err := m.withEntry(id, func(sub *Submission) {
		now := m.now()
		if v.RecordedAt.IsZero() {
			v.RecordedAt = now
		}
		sub.Verdict = &v
		sub.UpdatedAt = now
		appendTimeline(sub, now, TimelineVerdictRecorded,
			fmt.Sprintf("Coordinated verdict: %s (confidence %.2f)", v.Decision, v.Confidence),
			map[string]interface{}{
				"decision":         string(v.Decision),
				"confidence":       v.Confidence,
				"agents_succeeded": v.AgentsSucceeded,
				"agents_failed":    v.AgentsFailed,
				"degraded":         v.Degraded,
			})
		out = sub.clone()
	})
	return out, err
}

// withEntry runs fn with exclusive access to the submission.
func (m *Manager) withEntry(id string, fn func(sub *Submission)) error {
	v, ok := m.entries.Load(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return fmt.Errorf("%w: %s", ErrSubmissionNotFound, id)
	}
	fn(e.sub)
	return nil
}

// publish emits an event after the submission lock has been released.
// Publish failures are logged; the state change already happened.
func (m *Manager) publish(ctx context.Context, t eventbus.Type, id string, payload interface{}) {
	e, err := eventbus.NewEvent(t, id, payload)
	if err == nil {
		err = m.bus.Publish(ctx, e)
	}
	if err != nil {
		m.logger.Warn("", "", "failed to publish submission event", map[string]interface{}{
			"event_type":    string(t),
			"submission_id": id,
			"error":         err.Error(),
		})
	}
}

// appendTimeline keeps the timeline strictly ordered even when the clock
// does not advance between entries.
func appendTimeline(sub *Submission, at time.Time, event, message string, data map[string]interface{}) {
	if n := len(sub.Timeline); n > 0 {
		last := sub.Timeline[n-1].Timestamp
		if !at.After(last) {
			at = last.Add(time.Nanosecond)
		}
	}
	sub.Timeline = append(sub.Timeline, TimelineEntry{
		Timestamp: at,
		Event:     event,
		Message:   message,
		Data:      data,
	})
}
