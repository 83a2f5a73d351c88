// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package selector

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_CapabilityID(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM capabilities WHERE capability_key = $1`)).
		WithArgs("document-review").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("cap-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM capabilities`)).
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM capabilities`)).
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	id, err := store.CapabilityID(ctx, "document-review")
	require.NoError(t, err)
	assert.Equal(t, "cap-1", id)

	_, err = store.CapabilityID(ctx, "unknown")
	assert.ErrorIs(t, err, ErrCapabilityNotFound)

	_, err = store.CapabilityID(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCapabilityNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SelectionPolicies(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"capability_id", "org_id", "config"}).
		AddRow("cap-1", nil, []byte(`{"prefer":"fast"}`)).
		AddRow("cap-1", "acme", []byte(`{"prefer":"quality"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM selection_policies`)).
		WithArgs("cap-1", sql.NullString{String: "acme", Valid: true}).
		WillReturnRows(rows)

	policies, err := store.SelectionPolicies(context.Background(), "cap-1", "acme")
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, "", policies[0].OrgID)
	assert.Equal(t, "acme", policies[1].OrgID)
	assert.JSONEq(t, `{"prefer":"quality"}`, string(policies[1].Config))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SelectionPolicies_GlobalOnly(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM selection_policies`)).
		WithArgs("cap-1", sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"capability_id", "org_id", "config"}))

	policies, err := store.SelectionPolicies(context.Background(), "cap-1", "")
	require.NoError(t, err)
	assert.Empty(t, policies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Implementations(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "capability_id", "provider", "name", "tier", "cost_model", "org_id"}).
		AddRow("impl-a", "cap-1", "anthropic", "haiku", "fast", []byte(`{"cost_per_unit":0.002}`), nil).
		AddRow("impl-b", "cap-1", "internal", "reviewer", "quality", []byte(`not json`), "acme").
		AddRow("impl-c", "cap-1", "internal", "bulk", "fast", nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM capability_implementations`)).
		WithArgs("cap-1", sql.NullString{String: "acme", Valid: true}).
		WillReturnRows(rows)

	impls, err := store.Implementations(context.Background(), "cap-1", "acme")
	require.NoError(t, err)
	require.Len(t, impls, 3)

	assert.Equal(t, TierFast, impls[0].Tier)
	assert.InDelta(t, 0.002, ExtractCost(impls[0].CostModel), 1e-12)
	assert.Equal(t, "acme", impls[1].OrgID)
	assert.Nil(t, impls[1].CostModel, "unparseable cost model is dropped")
	assert.Zero(t, ExtractCost(impls[2].CostModel))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_OpenBreakers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM breaker_states`)).
		WithArgs("cap-1", "acme").
		WillReturnRows(sqlmock.NewRows([]string{"implementation_id"}).AddRow("impl-a").AddRow("impl-b"))

	ids, err := store.OpenBreakers(context.Background(), "cap-1", "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"impl-a", "impl-b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WriteSelectionLog(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	log := &SelectionLog{
		ID:               "log-1",
		OrgID:            "acme",
		CapabilityID:     "cap-1",
		CapabilityKey:    "document-review",
		ImplementationID: "impl-b",
		FallbackChain:    []Tier{TierFast, TierQuality},
		ReasonCodes:      []string{"tier:fast", "impl:internal/reviewer", "escalated:true"},
		Context:          map[string]interface{}{"submission_id": "sub-1"},
		EstimatedCost:    0.03,
		Status:           StatusSelected,
		CreatedAt:        created,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO selection_logs`)).
		WithArgs(
			"log-1", sql.NullString{String: "acme", Valid: true}, "cap-1", "document-review", "impl-b",
			sqlmock.AnyArg(), sqlmock.AnyArg(), []byte(`{"submission_id":"sub-1"}`), 0.03,
			StatusSelected, created,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.WriteSelectionLog(context.Background(), log))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WriteSelectionLog_Invalid(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.WriteSelectionLog(context.Background(), &SelectionLog{ID: "log-1", CapabilityID: "cap-1"})
	assert.ErrorIs(t, err, ErrInvalidSelectionLog)

	err = store.WriteSelectionLog(context.Background(), &SelectionLog{
		ID:               "log-2",
		CapabilityID:     "cap-1",
		ImplementationID: "impl-a",
		FallbackChain:    []Tier{TierFast, TierQuality, TierFast},
		Status:           StatusSelected,
	})
	assert.ErrorIs(t, err, ErrInvalidSelectionLog)

	assert.NoError(t, mock.ExpectationsWereMet(), "invalid logs never reach the database")
}

func TestPostgresStore_WriteFailureFailsSelection(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM capabilities`)).
		WithArgs("document-review").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("cap-1"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM selection_policies`)).
		WillReturnRows(sqlmock.NewRows([]string{"capability_id", "org_id", "config"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM breaker_states`)).
		WillReturnRows(sqlmock.NewRows([]string{"implementation_id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM capability_implementations`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "capability_id", "provider", "name", "tier", "cost_model", "org_id"}).
			AddRow("impl-a", "cap-1", "anthropic", "haiku", "fast", []byte(`{}`), nil))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO selection_logs`)).
		WillReturnError(errors.New("disk full"))

	sel, err := newTestSelector(store).Select(context.Background(), Request{CapabilityKey: "document-review"})
	assert.Nil(t, sel)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS capabilities`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
