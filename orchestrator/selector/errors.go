// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import "errors"

var (
	// ErrCapabilityNotFound is returned when the capability key is not registered
	ErrCapabilityNotFound = errors.New("capability not found")

	// ErrNoImplementationAvailable is returned when every candidate is excluded
	// by breaker state, tier, or cost ceiling
	ErrNoImplementationAvailable = errors.New("no implementation available")

	// ErrPolicyFetchFailed is returned when selection policies cannot be read
	ErrPolicyFetchFailed = errors.New("selection policy fetch failed")

	// ErrStoreUnavailable is returned for other backing-store failures,
	// including a failed audit write
	ErrStoreUnavailable = errors.New("policy store unavailable")

	// ErrInvalidPolicy is returned for malformed selection policy config
	ErrInvalidPolicy = errors.New("invalid selection policy")

	// ErrInvalidSelectionLog is returned for malformed selection log payloads
	ErrInvalidSelectionLog = errors.New("invalid selection log")

	// ErrInvalidRequest is returned for malformed select requests
	ErrInvalidRequest = errors.New("invalid selection request")
)

// IsNotFound reports caller errors that should surface as not-found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCapabilityNotFound)
}

// IsUnavailable reports errors the caller may retry.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNoImplementationAvailable) ||
		errors.Is(err, ErrPolicyFetchFailed) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsValidation reports malformed configuration or payload errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidPolicy) ||
		errors.Is(err, ErrInvalidSelectionLog) ||
		errors.Is(err, ErrInvalidRequest)
}
