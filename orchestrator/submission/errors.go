// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package submission

import "errors"

var (
	// ErrSubmissionNotFound is returned when no submission has the given id
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrSubmissionExists is returned when a caller-supplied id is taken
	ErrSubmissionExists = errors.New("submission already exists")

	// ErrInvalidEvent is returned for events the manager does not consume
	ErrInvalidEvent = errors.New("invalid submission event")
)
