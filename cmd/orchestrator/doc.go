// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Command orchestrator runs the ComplianceFlow orchestrator service.

It serves implementation selection, circuit breaker control, submission
tracking and multi-agent coordination over HTTP.

# Usage

	orchestrator

# Environment Variables

  - PORT: HTTP server port (default: 8081)
  - DATABASE_URL: PostgreSQL connection string for the inventory, selection
    log and breaker state. Without it the inventory is read from
    INVENTORY_FILE and kept in memory.
  - REDIS_URL: Redis for the event bus and breaker failure windows
  - EVENT_PREFIX: Redis channel prefix (default: events:)
  - INVENTORY_FILE: YAML capability inventory
  - AGENTS_FILE: YAML list of HTTP compliance agents
  - JWT_SECRET: HS256 secret; without it the org is read from X-Org-ID
  - PREMIUM_ORGS: comma separated orgs that get premium SLAs
  - RETENTION_PERIOD, RETENTION_INTERVAL: terminal submission retention
  - BREAKER_ERROR_THRESHOLD, BREAKER_WINDOW, BREAKER_TIMEOUT: breaker tuning
  - COORDINATOR_TIMEOUT: default agent fan-out timeout
  - CONFIG_FILE: optional YAML file with the same keys in lower case

# Example

	export INVENTORY_FILE=/etc/complianceflow/inventory.yaml
	export REDIS_URL=redis://localhost:6379/0
	./orchestrator
*/
package main
