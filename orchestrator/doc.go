// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package orchestrator wires the compliance routing and workflow tracking
components into one HTTP service.

# Components

  - selector: picks the implementation that serves a capability for an
    org, honoring selection policies, open circuit breakers and cost caps,
    and writes an audit record for every selection.
  - circuitbreaker: counts implementation failures in a sliding window and
    opens breakers that the selector skips.
  - submission: tracks content submissions through the workflow engine's
    lifecycle events, with SLA deadlines, progress and a timeline.
  - coordinator: fans a request out to compliance agents concurrently and
    synthesizes one verdict.
  - eventbus: in-memory or Redis publish/subscribe for lifecycle events.
  - analytics: optional sink for agent and submission aggregates.

# Storage

With DATABASE_URL set the inventory, selection log and breaker state live in
PostgreSQL. Otherwise the inventory is loaded from INVENTORY_FILE and all
state is in memory. REDIS_URL switches the event bus and breaker failure
windows to Redis so several instances can share them.

# HTTP API

	GET  /health
	GET  /prometheus
	POST /api/v1/capabilities/{key}/select
	GET  /api/v1/breakers
	POST /api/v1/breakers/outcomes | /trip | /reset
	POST /api/v1/submissions
	GET  /api/v1/submissions[/{id}[/status|/timeline]]
	PATCH /api/v1/submissions/{id}
	POST /api/v1/submissions/{id}/cancel | /coordinate
	POST /api/v1/events
	GET  /api/v1/agents/performance
	GET  /api/v1/coordinator/metrics | /agents

API routes require a bearer token when JWT_SECRET is set. See LoadConfig
for the full list of settings.
*/
package orchestrator
