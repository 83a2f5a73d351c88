// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package coordinator runs a set of compliance agents concurrently for one
// submission and folds their answers into a single verdict.
//
// Every request yields a typed Outcome, so one failing or slow agent never
// hides the others. Verdicts use majority with veto: rejections win when they
// outnumber approvals, any remaining approval approves, and everything else
// is escalated to human review. Coordinate never returns an error; if the
// round itself fails the result is a degraded NEEDS_HUMAN_REVIEW with zero
// confidence.
package coordinator
