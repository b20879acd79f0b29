package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleRecord(hash, ref string) CalculationRecord {
	return CalculationRecord{
		Hash:            hash,
		ClientRef:       ref,
		InvestorName:    "Jane Smith",
		CompanyName:     "Acme Robotics",
		Direction:       "gross",
		InvestorType:    "professional",
		Amount:          decimal.RequireFromString("50000"),
		GrossInvestment: decimal.RequireFromString("50000"),
		TotalFees:       decimal.RequireFromString("4500"),
		TotalTransfer:   decimal.RequireFromString("54500"),
		Status:          "ready",
		Result:          json.RawMessage(`{"hash":"` + hash + `"}`),
	}
}

func TestSQLite_SaveCalculation_Dedupes(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, created, err := st.SaveCalculation(ctx, sampleRecord("abc123", "CC1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)

	again, created, err := st.SaveCalculation(ctx, sampleRecord("abc123", "CC1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, decimal.RequireFromString("54500").Equal(again.TotalTransfer))
	assert.JSONEq(t, `{"hash":"abc123"}`, string(again.Result))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Calculations)
}

func TestSQLite_SaveCalculation_RequiresHash(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)

	_, _, err := st.SaveCalculation(context.Background(), sampleRecord("", "CC1"))
	assert.Error(t, err)
}

func TestSQLite_GetCalculation(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	saved, _, err := st.SaveCalculation(ctx, sampleRecord("h1", "CC1"))
	require.NoError(t, err)

	byID, err := st.GetCalculation(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "h1", byID.Hash)
	assert.Equal(t, "Acme Robotics", byID.CompanyName)
	assert.WithinDuration(t, saved.CreatedAt, byID.CreatedAt, time.Second)

	byHash, err := st.GetCalculation(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byHash.ID)

	_, err = st.GetCalculation(ctx, "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListCalculations(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, ref := range []string{"CC1", "CC2", "CC1"} {
		rec := sampleRecord(string(rune('a'+i)), ref)
		if i == 2 {
			rec.Status = "blocked"
			rec.UsingDefaultRates = true
		}
		_, _, err := st.SaveCalculation(ctx, rec)
		require.NoError(t, err)
	}

	all, err := st.ListCalculations(ctx, CalculationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	cc1, err := st.ListCalculations(ctx, CalculationFilter{ClientRef: "CC1"})
	require.NoError(t, err)
	assert.Len(t, cc1, 2)

	blocked, err := st.ListCalculations(ctx, CalculationFilter{Status: "blocked"})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.True(t, blocked[0].UsingDefaultRates)

	page, err := st.ListCalculations(ctx, CalculationFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Calculations)
	assert.Equal(t, 1, stats.DefaultRateCalcs)
	assert.Equal(t, map[string]int{"ready": 2, "blocked": 1}, stats.ByStatus)
}

func TestSQLite_Activity(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []Activity{
		{Kind: ActivityRequest, Status: "ok", ClientRef: "CC1", CreatedAt: base},
		{Kind: ActivityValidation, Status: "blocked", ClientRef: "CC1", Message: "annual cap", CreatedAt: base.Add(time.Minute)},
		{Kind: ActivityCalculation, Status: "ok", Detail: json.RawMessage(`{"hash":"h1"}`), CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, a := range entries {
		require.NoError(t, st.LogActivity(ctx, a))
	}

	all, err := st.ListActivity(ctx, ActivityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ActivityCalculation, all[0].Kind)
	assert.JSONEq(t, `{"hash":"h1"}`, string(all[0].Detail))
	assert.Equal(t, ActivityRequest, all[2].Kind)

	validations, err := st.ListActivity(ctx, ActivityFilter{Kind: ActivityValidation})
	require.NoError(t, err)
	require.Len(t, validations, 1)
	assert.Equal(t, "annual cap", validations[0].Message)

	recent, err := st.ListActivity(ctx, ActivityFilter{Since: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := st.ListActivity(ctx, ActivityFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"request": 1, "validation": 1, "calculation": 1}, stats.Activity)
	require.NotNil(t, stats.LastActivity)
	assert.True(t, stats.LastActivity.Equal(base.Add(2*time.Minute)))
}

func TestSQLite_StatsEmpty(t *testing.T) {
	t.Parallel()
	st := newTestSQLiteStore(t)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Calculations)
	assert.Empty(t, stats.ByStatus)
	assert.Nil(t, stats.LastActivity)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	st, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "open.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = Open(context.Background(), "mysql", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
