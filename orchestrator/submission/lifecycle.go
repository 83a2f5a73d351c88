// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"complianceflow/platform/orchestrator/analytics"
	"complianceflow/platform/orchestrator/eventbus"
)

func (m *Manager) handleWorkflowStarted(ctx context.Context, e eventbus.Event) {
	var p WorkflowStartedPayload
	if err := e.Decode(&p); err != nil {
		m.dropEvent(e, err)
		return
	}

	var from Status
	var stage string
	changed := false
	err := m.withEntry(e.SubmissionID, func(sub *Submission) {
		now := m.now()
		if sub.Status.IsTerminal() {
			appendTimeline(sub, now, TimelineWorkflowStarted,
				fmt.Sprintf("Workflow %q started after submission was %s", p.Workflow.Name, sub.Status), nil)
			return
		}

		wf := p.Workflow
		wf.Stages = append([]string(nil), p.Workflow.Stages...)
		wf.Agents = append([]string(nil), p.Workflow.Agents...)
		sub.Workflow = &wf
		if len(wf.Stages) > 0 {
			sub.CurrentStage = wf.Stages[0]
		}
		sub.Progress.TotalSteps = len(wf.Agents)
		recomputePercentage(sub)

		from = sub.Status
		sub.Status = StatusProcessing
		sub.UpdatedAt = now
		stage = sub.CurrentStage
		changed = from != StatusProcessing

		appendTimeline(sub, now, TimelineWorkflowStarted,
			fmt.Sprintf("Workflow %q started with %d agents", wf.Name, len(wf.Agents)),
			map[string]interface{}{
				"workflow": wf.Name,
				"stages":   wf.Stages,
				"agents":   wf.Agents,
			})
	})
	if err != nil {
		m.dropEvent(e, err)
		return
	}

	if changed {
		m.publish(ctx, eventbus.SubmissionStateChanged, e.SubmissionID, StateChangedPayload{
			From:         from,
			To:           StatusProcessing,
			CurrentStage: stage,
		})
	}
}

func (m *Manager) handleAgentCompleted(ctx context.Context, e eventbus.Event) {
	var r AgentResult
	if err := e.Decode(&r); err != nil {
		m.dropEvent(e, err)
		return
	}
	if r.Agent == "" {
		m.dropEvent(e, fmt.Errorf("%w: agent name missing", ErrInvalidEvent))
		return
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = m.now()
	}

	duplicate := false
	err := m.withEntry(e.SubmissionID, func(sub *Submission) {
		now := m.now()
		_, duplicate = sub.AgentResults[r.Agent]
		sub.AgentResults[r.Agent] = r
		sub.Issues = appendUnique(sub.Issues, r.Issues...)
		sub.Warnings = appendUnique(sub.Warnings, r.Warnings...)
		sub.UpdatedAt = now

		// Late completions on a terminal submission are recorded but do not
		// move its progress or stage.
		if !sub.Status.IsTerminal() {
			if !duplicate {
				sub.Progress.CompletedSteps++
				recomputePercentage(sub)
			}
			if r.Stage != "" {
				sub.CurrentStage = r.Stage
			}
		}

		msg := fmt.Sprintf("Agent %s completed: %s", r.Agent, r.Decision)
		if duplicate {
			msg = fmt.Sprintf("Agent %s reported again: %s", r.Agent, r.Decision)
		}
		appendTimeline(sub, now, TimelineAgentCompleted, msg, map[string]interface{}{
			"agent":       r.Agent,
			"decision":    string(r.Decision),
			"duration_ms": r.DurationMs,
			"issues":      len(r.Issues),
			"warnings":    len(r.Warnings),
			"progress":    sub.Progress.Percentage,
		})
	})
	if err != nil {
		m.dropEvent(e, err)
		return
	}

	if !duplicate {
		perf := m.tracker.Record(r.Agent, r.Duration())
		m.sink.RecordAgentPerformance(perf)
	}
}

func (m *Manager) handleWorkflowCompleted(ctx context.Context, e eventbus.Event) {
	var p WorkflowCompletedPayload
	if err := e.Decode(&p); err != nil {
		m.dropEvent(e, err)
		return
	}
	status := StatusCompleted
	if p.Status == StatusFailed {
		status = StatusFailed
	}

	var from Status
	var done *Submission
	var summary string
	err := m.withEntry(e.SubmissionID, func(sub *Submission) {
		now := m.now()
		if sub.Status.IsTerminal() {
			appendTimeline(sub, now, TimelineWorkflowCompleted,
				fmt.Sprintf("Workflow reported %s after submission was %s", status, sub.Status), nil)
			return
		}

		from = sub.Status
		sub.Status = status
		sub.Progress.Percentage = 100
		sub.CompletedAt = &now
		sub.UpdatedAt = now
		met := !now.After(sub.SLA.Deadline)
		sub.SLA.Met = &met
		sub.SLA.Breached = !met

		duration := now.Sub(sub.CreatedAt)
		summary = p.Summary
		if summary == "" {
			summary = fmt.Sprintf("%d agents reported, %d issues, %d warnings",
				len(sub.AgentResults), len(sub.Issues), len(sub.Warnings))
		}
		appendTimeline(sub, now, TimelineWorkflowCompleted,
			fmt.Sprintf("Workflow %s in %s", status, duration.Round(time.Millisecond)),
			map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
				"sla_met":     met,
				"summary":     summary,
			})
		done = sub.clone()
	})
	if err != nil {
		m.dropEvent(e, err)
		return
	}
	if done == nil {
		return
	}

	duration := done.CompletedAt.Sub(done.CreatedAt)
	met := *done.SLA.Met
	m.logger.InfoWithDuration(done.OrgID, "", "submission workflow finished", duration, map[string]interface{}{
		"submission_id": done.ID,
		"status":        string(status),
		"sla_met":       met,
		"issues":        len(done.Issues),
	})
	m.publish(ctx, eventbus.SubmissionStateChanged, done.ID, StateChangedPayload{
		From:         from,
		To:           status,
		CurrentStage: done.CurrentStage,
	})
	m.publish(ctx, eventbus.SubmissionCompleted, done.ID, CompletedPayload{
		Status:     status,
		DurationMs: duration.Milliseconds(),
		SLAMet:     met,
		Deadline:   done.SLA.Deadline,
		Issues:     len(done.Issues),
		Warnings:   len(done.Warnings),
		Summary:    summary,
	})
	m.sink.RecordSubmissionOutcome(analytics.SubmissionOutcome{
		SubmissionID: done.ID,
		OrgID:        done.OrgID,
		Priority:     string(done.Priority),
		Status:       string(status),
		Duration:     duration,
		SLAMet:       met,
		Issues:       len(done.Issues),
		Warnings:     len(done.Warnings),
	})
}

func (m *Manager) handlePreflight(ctx context.Context, e eventbus.Event) {
	var p PreflightPayload
	if err := e.Decode(&p); err != nil {
		m.dropEvent(e, err)
		return
	}

	err := m.withEntry(e.SubmissionID, func(sub *Submission) {
		msg := "Pre-flight check passed"
		if !p.Passed {
			msg = "Pre-flight check reported problems"
		}
		if p.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, p.Message)
		}
		appendTimeline(sub, m.now(), TimelinePreflight, msg, map[string]interface{}{
			"passed": p.Passed,
			"checks": p.Checks,
		})
	})
	if err != nil {
		m.dropEvent(e, err)
	}
}

func (m *Manager) dropEvent(e eventbus.Event, err error) {
	what := "invalid event"
	if errors.Is(err, ErrSubmissionNotFound) {
		what = "event for unknown submission"
	}
	m.logger.Warn("", "", "dropping "+what, map[string]interface{}{
		"event_type":    string(e.Type),
		"event_id":      e.ID,
		"submission_id": e.SubmissionID,
		"error":         err.Error(),
	})
}

// recomputePercentage derives the percentage from step counts without ever
// lowering it.
func recomputePercentage(sub *Submission) {
	p := &sub.Progress
	if p.TotalSteps <= 0 {
		return
	}
	pct := int(math.Round(float64(p.CompletedSteps) / float64(p.TotalSteps) * 100))
	if pct > 100 {
		pct = 100
	}
	if pct > p.Percentage {
		p.Percentage = pct
	}
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		if item == "" {
			continue
		}
		found := false
		for _, existing := range dst {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, item)
		}
	}
	return dst
}
