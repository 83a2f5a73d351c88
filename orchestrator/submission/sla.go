// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import (
	"time"

	"complianceflow/platform/shared/types"
)

var slaTargets = map[Priority]time.Duration{
	PriorityUrgent: 30 * time.Minute,
	PriorityHigh:   2 * time.Hour,
	PriorityNormal: 4 * time.Hour,
	PriorityLow:    24 * time.Hour,
}

// SLATarget returns the completion target for a priority. Premium orgs get
// half the standard target.
func SLATarget(p Priority, tier types.OrgTier) time.Duration {
	target, ok := slaTargets[p]
	if !ok {
		target = slaTargets[PriorityNormal]
	}
	if tier.IsPremium() {
		target /= 2
	}
	return target
}

// NewSLA computes the SLA for a submission started at start.
func NewSLA(p Priority, tier types.OrgTier, start time.Time) SLA {
	target := SLATarget(p, tier)
	return SLA{
		Target:    target,
		StartTime: start,
		Deadline:  start.Add(target),
	}
}

// SLA status values reported by Status.
const (
	SLAOnTrack  = "on-track"
	SLABreached = "breached"
)
