// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import "errors"

var (
	// ErrBreakerNotFound is returned when no state exists for a key
	ErrBreakerNotFound = errors.New("breaker not found")

	// ErrInvalidKey is returned when a key is missing required parts
	ErrInvalidKey = errors.New("invalid breaker key")

	// ErrInvalidTimeout is returned for negative trip timeouts
	ErrInvalidTimeout = errors.New("invalid breaker timeout")

	// ErrForbidden is returned when the caller may not change a breaker
	ErrForbidden = errors.New("breaker belongs to another scope")
)
