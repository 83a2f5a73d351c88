// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package circuitbreaker

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRepository implements Repository on the breaker_states table.
// Global breakers are stored with org_id = ''.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const breakerColumns = `capability_id, implementation_id, org_id, state, reason, opened_at, expires_at, updated_at`

// Save upserts the breaker row
func (r *PostgresRepository) Save(ctx context.Context, b *Breaker) error {
	query := `
		INSERT INTO breaker_states (` + breakerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (capability_id, implementation_id, org_id) DO UPDATE SET
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			opened_at = EXCLUDED.opened_at,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		b.CapabilityID, b.ImplementationID, b.OrgID, string(b.State),
		nullString(b.Reason), nullTime(b.OpenedAt), nullTime(b.ExpiresAt), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save breaker state: %w", err)
	}
	return nil
}

// Get retrieves the breaker row for key
func (r *PostgresRepository) Get(ctx context.Context, key Key) (*Breaker, error) {
	query := `SELECT ` + breakerColumns + ` FROM breaker_states
		WHERE capability_id = $1 AND implementation_id = $2 AND org_id = $3`

	b, err := scanBreaker(r.db.QueryRowContext(ctx, query, key.CapabilityID, key.ImplementationID, key.OrgID))
	if err == sql.ErrNoRows {
		return nil, ErrBreakerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get breaker state: %w", err)
	}
	return b, nil
}

// ListOpen returns open, unexpired breakers applying to orgID
func (r *PostgresRepository) ListOpen(ctx context.Context, capabilityID, orgID string, now time.Time) ([]Breaker, error) {
	query := `SELECT ` + breakerColumns + ` FROM breaker_states
		WHERE ($1 = '' OR capability_id = $1)
		  AND state = 'open'
		  AND (org_id = $2 OR org_id = '')
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY capability_id, implementation_id, org_id`

	rows, err := r.db.QueryContext(ctx, query, capabilityID, orgID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list open breakers: %w", err)
	}
	defer rows.Close()

	var breakers []Breaker
	for rows.Next() {
		b, err := scanBreaker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan breaker state: %w", err)
		}
		breakers = append(breakers, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate breaker states: %w", err)
	}
	return breakers, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBreaker(row rowScanner) (*Breaker, error) {
	var b Breaker
	var state string
	var reason sql.NullString
	var openedAt, expiresAt sql.NullTime
	if err := row.Scan(&b.CapabilityID, &b.ImplementationID, &b.OrgID, &state,
		&reason, &openedAt, &expiresAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.State = State(state)
	b.Reason = reason.String
	if openedAt.Valid {
		t := openedAt.Time
		b.OpenedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		b.ExpiresAt = &t
	}
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
