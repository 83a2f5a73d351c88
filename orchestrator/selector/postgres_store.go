// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the tables the selector reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS capabilities (
	id             TEXT PRIMARY KEY,
	capability_key TEXT NOT NULL UNIQUE,
	name           TEXT,
	description    TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS capability_implementations (
	id            TEXT PRIMARY KEY,
	capability_id TEXT NOT NULL REFERENCES capabilities(id),
	provider      TEXT NOT NULL,
	name          TEXT NOT NULL,
	tier          TEXT NOT NULL CHECK (tier IN ('fast', 'quality')),
	cost_model    JSONB NOT NULL DEFAULT '{}',
	org_id        TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS selection_policies (
	capability_id TEXT NOT NULL REFERENCES capabilities(id),
	org_id        TEXT,
	config        JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS breaker_states (
	capability_id     TEXT NOT NULL,
	implementation_id TEXT NOT NULL,
	org_id            TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL CHECK (state IN ('open', 'closed')),
	reason            TEXT,
	opened_at         TIMESTAMPTZ,
	expires_at        TIMESTAMPTZ,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (capability_id, implementation_id, org_id)
);

CREATE TABLE IF NOT EXISTS selection_logs (
	id                TEXT PRIMARY KEY,
	org_id            TEXT,
	capability_id     TEXT NOT NULL,
	capability_key    TEXT NOT NULL,
	implementation_id TEXT NOT NULL,
	fallback_chain    TEXT[] NOT NULL,
	reason_codes      TEXT[] NOT NULL,
	context           JSONB,
	estimated_cost    DOUBLE PRECISION NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the selector tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create selector schema: %w", err)
	}
	return nil
}

// CapabilityID resolves a capability key to its id
func (s *PostgresStore) CapabilityID(ctx context.Context, key string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM capabilities WHERE capability_key = $1`, key,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrCapabilityNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve capability: %w", err)
	}
	return id, nil
}

// SelectionPolicies returns org-scoped and global policy rows
func (s *PostgresStore) SelectionPolicies(ctx context.Context, capabilityID, orgID string) ([]SelectionPolicy, error) {
	query := `
		SELECT capability_id, org_id, config
		FROM selection_policies
		WHERE capability_id = $1 AND (org_id = $2 OR org_id IS NULL)
	`

	rows, err := s.db.QueryContext(ctx, query, capabilityID, nullString(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to query selection policies: %w", err)
	}
	defer rows.Close()

	var policies []SelectionPolicy
	for rows.Next() {
		var p SelectionPolicy
		var org sql.NullString
		var config []byte
		if err := rows.Scan(&p.CapabilityID, &org, &config); err != nil {
			return nil, fmt.Errorf("failed to scan selection policy: %w", err)
		}
		p.OrgID = org.String
		p.Config = json.RawMessage(config)
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate selection policies: %w", err)
	}
	return policies, nil
}

// Implementations returns global and org-scoped implementations in registration order
func (s *PostgresStore) Implementations(ctx context.Context, capabilityID, orgID string) ([]Implementation, error) {
	query := `
		SELECT id, capability_id, provider, name, tier, cost_model, org_id
		FROM capability_implementations
		WHERE capability_id = $1 AND (org_id = $2 OR org_id IS NULL)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, capabilityID, nullString(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to query implementations: %w", err)
	}
	defer rows.Close()

	var impls []Implementation
	for rows.Next() {
		var impl Implementation
		var tier string
		var costModel []byte
		var org sql.NullString
		if err := rows.Scan(&impl.ID, &impl.CapabilityID, &impl.Provider, &impl.Name, &tier, &costModel, &org); err != nil {
			return nil, fmt.Errorf("failed to scan implementation: %w", err)
		}
		impl.Tier = Tier(tier)
		impl.OrgID = org.String
		if len(costModel) > 0 {
			// Decode numbers as json.Number; ExtractCost handles both forms.
			dec := json.NewDecoder(bytes.NewReader(costModel))
			dec.UseNumber()
			if err := dec.Decode(&impl.CostModel); err != nil {
				impl.CostModel = nil
			}
		}
		impls = append(impls, impl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate implementations: %w", err)
	}
	return impls, nil
}

// OpenBreakers returns implementation ids with an open, unexpired breaker
func (s *PostgresStore) OpenBreakers(ctx context.Context, capabilityID, orgID string) ([]string, error) {
	query := `
		SELECT DISTINCT implementation_id
		FROM breaker_states
		WHERE capability_id = $1
		  AND state = 'open'
		  AND (org_id = $2 OR org_id = '')
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	rows, err := s.db.QueryContext(ctx, query, capabilityID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query breaker states: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan breaker state: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate breaker states: %w", err)
	}
	return ids, nil
}

// WriteSelectionLog appends an audit record
func (s *PostgresStore) WriteSelectionLog(ctx context.Context, log *SelectionLog) error {
	if err := log.Validate(); err != nil {
		return err
	}

	contextJSON, err := json.Marshal(log.Context)
	if err != nil {
		return fmt.Errorf("%w: context not serializable: %v", ErrInvalidSelectionLog, err)
	}

	chain := make([]string, len(log.FallbackChain))
	for i, t := range log.FallbackChain {
		chain[i] = string(t)
	}

	query := `
		INSERT INTO selection_logs (
			id, org_id, capability_id, capability_key, implementation_id,
			fallback_chain, reason_codes, context, estimated_cost, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		log.ID, nullString(log.OrgID), log.CapabilityID, log.CapabilityKey, log.ImplementationID,
		pq.Array(chain), pq.Array(log.ReasonCodes), contextJSON, log.EstimatedCost,
		log.Status, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write selection log: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
