// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"fmt"
	"strings"

	"complianceflow/platform/shared/types"
)

// DefaultConfidence is used for results that do not report one.
const DefaultConfidence = 0.5

// Synthesize folds outcomes into one verdict by majority with veto: rejects
// win when they outnumber approvals, otherwise any approval approves, and
// everything else needs human review. Confidence is the mean of the
// successful results' confidences, 0 when none succeeded.
func Synthesize(outcomes []Outcome) CoordinationResult {
	res := CoordinationResult{Outcomes: outcomes}

	var confidenceSum float64
	var rejectReasons, failedAgents []string
	for _, o := range outcomes {
		if !o.OK() {
			res.Failed++
			failedAgents = append(failedAgents, o.Agent)
			continue
		}
		res.Succeeded++
		confidenceSum += confidenceOf(o.Result)

		switch o.Result.Decision {
		case types.DecisionApprove:
			res.Approvals++
		case types.DecisionReject:
			res.Rejections++
			if o.Result.Rationale != "" {
				rejectReasons = append(rejectReasons, fmt.Sprintf("%s: %s", o.Agent, o.Result.Rationale))
			}
		}
	}

	switch {
	case res.Rejections > res.Approvals:
		res.FinalDecision = types.VerdictRejected
	case res.Approvals > 0:
		res.FinalDecision = types.VerdictApproved
	default:
		res.FinalDecision = types.VerdictNeedsHumanReview
	}

	if res.Succeeded > 0 {
		res.Confidence = confidenceSum / float64(res.Succeeded)
	}

	res.Rationale = fmt.Sprintf("%s based on %d of %d agents (%d approve, %d reject, %d other)",
		res.FinalDecision, res.Succeeded, len(outcomes),
		res.Approvals, res.Rejections, res.Succeeded-res.Approvals-res.Rejections)
	if res.Failed > 0 {
		res.Rationale += fmt.Sprintf("; %d agents failed", res.Failed)
	}

	res.RecommendedActions = recommendedActions(res.FinalDecision, rejectReasons, failedAgents)
	return res
}

func confidenceOf(r *Result) float64 {
	if r.Confidence == nil {
		return DefaultConfidence
	}
	c := *r.Confidence
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func recommendedActions(final types.Verdict, rejectReasons, failedAgents []string) []string {
	var actions []string
	switch final {
	case types.VerdictApproved:
		actions = append(actions, "Proceed with submission")
	case types.VerdictRejected:
		reason := "rejected by compliance agents"
		if len(rejectReasons) > 0 {
			reason = strings.Join(rejectReasons, "; ")
		}
		actions = append(actions, "Deny submission: "+reason, "Notify submitter of required changes")
	default:
		actions = append(actions, "Escalate to a human reviewer")
	}
	if len(failedAgents) > 0 {
		actions = append(actions, "Re-run failed agents: "+strings.Join(failedAgents, ", "))
	}
	return actions
}

// degradedResult is returned when coordination itself fails.
func degradedResult(err error, outcomes []Outcome) CoordinationResult {
	return CoordinationResult{
		FinalDecision:      types.VerdictNeedsHumanReview,
		Confidence:         0,
		Rationale:          fmt.Sprintf("Coordination failed (%v); escalating to human review", err),
		RecommendedActions: []string{"Escalate to a human reviewer"},
		Degraded:           true,
		Outcomes:           outcomes,
		Failed:             len(outcomes),
	}
}
