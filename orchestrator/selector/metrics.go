// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes selection counters and latency to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	selections *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics creates and registers selector metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selector_selections_total",
				Help: "Successful implementation selections",
			},
			[]string{"capability", "tier", "escalated"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selector_failures_total",
				Help: "Failed implementation selections by reason",
			},
			[]string{"capability", "reason"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "selector_selection_duration_seconds",
				Help:    "Time spent selecting an implementation",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.selections, m.failures, m.duration)
	return m
}

func (m *Metrics) observe(capability string, sel *Selection, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
	if err != nil {
		m.failures.WithLabelValues(capability, failureReason(err)).Inc()
		return
	}
	m.selections.WithLabelValues(
		capability,
		string(sel.Implementation.Tier),
		strconv.FormatBool(sel.Log.Escalated()),
	).Inc()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCapabilityNotFound):
		return "capability_not_found"
	case errors.Is(err, ErrNoImplementationAvailable):
		return "no_implementation"
	case errors.Is(err, ErrPolicyFetchFailed):
		return "policy_fetch_failed"
	case errors.Is(err, ErrInvalidPolicy):
		return "invalid_policy"
	case errors.Is(err, ErrInvalidSelectionLog):
		return "invalid_selection_log"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "store_unavailable"
	}
}
