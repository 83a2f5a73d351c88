// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package analytics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink exports analytics records as Prometheus metrics.
type PrometheusSink struct {
	agentCount       *prometheus.GaugeVec
	agentAvgDuration *prometheus.GaugeVec
	agentMaxDuration *prometheus.GaugeVec

	coordinatorInvocations *prometheus.GaugeVec
	coordinatorLatency     prometheus.Gauge
	coordinatorDegraded    prometheus.Gauge

	submissions        *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
}

// NewPrometheusSink creates the sink and registers its collectors on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		agentCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_completions",
				Help: "Completed agent runs observed per agent",
			},
			[]string{"agent"},
		),
		agentAvgDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_avg_duration_seconds",
				Help: "Rolling average agent run duration",
			},
			[]string{"agent"},
		),
		agentMaxDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_max_duration_seconds",
				Help: "Slowest observed agent run",
			},
			[]string{"agent"},
		),
		coordinatorInvocations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coordinator_invocations",
				Help: "Agent invocations dispatched by the coordinator",
			},
			[]string{"result"},
		),
		coordinatorLatency: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_avg_latency_seconds",
				Help: "Running average agent invocation latency",
			},
		),
		coordinatorDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coordinator_degraded",
				Help: "Coordinations that degraded to human review after an internal failure",
			},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "submissions_finished_total",
				Help: "Submissions that reached a terminal workflow state",
			},
			[]string{"status", "priority", "sla_met"},
		),
		submissionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "submission_duration_seconds",
				Help:    "Time from submission creation to workflow completion",
				Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 43200, 86400},
			},
			[]string{"priority"},
		),
	}

	reg.MustRegister(
		s.agentCount, s.agentAvgDuration, s.agentMaxDuration,
		s.coordinatorInvocations, s.coordinatorLatency, s.coordinatorDegraded,
		s.submissions, s.submissionDuration,
	)
	return s
}

// RecordAgentPerformance implements Sink.
func (s *PrometheusSink) RecordAgentPerformance(p AgentPerformance) {
	s.agentCount.WithLabelValues(p.Agent).Set(float64(p.Count))
	s.agentAvgDuration.WithLabelValues(p.Agent).Set(p.AvgDuration.Seconds())
	s.agentMaxDuration.WithLabelValues(p.Agent).Set(p.MaxDuration.Seconds())
}

// RecordCoordinatorMetrics implements Sink.
func (s *PrometheusSink) RecordCoordinatorMetrics(m CoordinatorMetrics) {
	s.coordinatorInvocations.WithLabelValues("success").Set(float64(m.SuccessfulInvocations))
	s.coordinatorInvocations.WithLabelValues("failure").Set(float64(m.FailedInvocations))
	s.coordinatorLatency.Set(m.AverageLatency.Seconds())
	s.coordinatorDegraded.Set(float64(m.Degraded))
}

// RecordSubmissionOutcome implements Sink.
func (s *PrometheusSink) RecordSubmissionOutcome(o SubmissionOutcome) {
	s.submissions.WithLabelValues(o.Status, o.Priority, strconv.FormatBool(o.SLAMet)).Inc()
	s.submissionDuration.WithLabelValues(o.Priority).Observe(o.Duration.Seconds())
}
