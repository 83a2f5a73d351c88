// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package types

import "strings"

// Decision is one agent's vote on a submission.
type Decision string

const (
	DecisionApprove     Decision = "approve"
	DecisionReject      Decision = "reject"
	DecisionNeedsReview Decision = "needs_review"
)

// ParseDecision normalizes agent output such as "APPROVED", "Rejected" or
// "needs-review". Anything unrecognized is a needs_review vote.
func ParseDecision(s string) Decision {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "pass", "passed":
		return DecisionApprove
	case "reject", "rejected", "deny", "denied", "fail", "failed":
		return DecisionReject
	default:
		return DecisionNeedsReview
	}
}

// UnmarshalText lets JSON and YAML decoding normalize decisions.
func (d *Decision) UnmarshalText(text []byte) error {
	*d = ParseDecision(string(text))
	return nil
}

// Verdict is the synthesized outcome of several agent decisions.
type Verdict string

const (
	VerdictApproved         Verdict = "APPROVED"
	VerdictRejected         Verdict = "REJECTED"
	VerdictNeedsHumanReview Verdict = "NEEDS_HUMAN_REVIEW"
)
