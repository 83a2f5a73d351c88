// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package submission tracks compliance submissions through their review
// workflow.
//
// The Manager owns submission state and is driven by workflow events from
// the bus (workflow-started, agent-completed, workflow-completed,
// pre-flight-check-complete). Each submission is guarded by its own lock, so
// concurrent agent completions for one submission serialize while different
// submissions never contend. State changes are re-published as
// submission-created, submission-state-changed and submission-completed.
//
// SLA deadlines are fixed at creation from the priority and the org tier.
// Terminal submissions are purged by the retention sweep once they are older
// than the retention period.
package submission
