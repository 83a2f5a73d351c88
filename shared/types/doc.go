// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package types holds small value types shared by the selector, submission,
// and coordinator packages: organization tiers and the per-request org
// context used for SLA computation and policy scoping.
package types
