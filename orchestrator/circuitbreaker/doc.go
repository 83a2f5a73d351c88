// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package circuitbreaker keeps per-implementation breaker state.
//
// Failures reported through RecordOutcome are counted in a sliding window
// (in memory or in Redis); crossing the error threshold opens the breaker
// for the default timeout. Breakers may also be tripped and reset by hand.
// A breaker with an empty org id is global and applies to every org. The
// selector reads open breakers through OpenImplementations or directly from
// the breaker_states table written by PostgresRepository.
package circuitbreaker
