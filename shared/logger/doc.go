// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for the routing and
submission-tracking services.

Each entry is a single JSON line carrying the timestamp (RFC3339Nano), level,
component, instance id, container, org id, request id, message, and free-form
fields:

	log := logger.New("selector")
	log.Info("org-123", "req-456", "implementation selected", map[string]interface{}{
	    "capability": "document-review",
	    "tier":       "fast",
	})

Sub-components share the parent's sink:

	sweepLog := log.Named("retention")

# Environment Variables

  - INSTANCE_ID: deployment instance identifier
  - LOG_LEVEL: minimum level written (DEBUG, INFO, WARN, ERROR; default INFO)

Logger instances are safe for concurrent use.
*/
package logger
