package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var calcColumns = []string{
	"id", "hash", "client_ref", "investor_name", "company_name", "direction", "investor_type",
	"amount", "gross_investment", "total_fees", "total_transfer",
	"using_default_rates", "status", "result", "created_at",
}

func calcRow(rows *pgxmock.Rows, id, hash string, created time.Time) *pgxmock.Rows {
	return rows.AddRow(id, hash, "CC1", "Jane Smith", "Acme", "gross", "professional",
		"50000.00", "50000.00", "4500.00", "54500.00",
		false, "ready", json.RawMessage(`{"hash":"`+hash+`"}`), created)
}

func TestPostgresStore_SaveCalculation_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)INSERT INTO calculations .* ON CONFLICT \(hash\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "h1", "CC1", "Jane Smith", "Acme Robotics", "gross", "professional",
			"50000", "50000", "4500", "54500", false, "ready", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, created, err := s.SaveCalculation(context.Background(), sampleRecord("h1", "CC1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveCalculation_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(`(?s)INSERT INTO calculations .* ON CONFLICT \(hash\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "h1", "CC1", "Jane Smith", "Acme Robotics", "gross", "professional",
			"50000", "50000", "4500", "54500", false, "ready", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`(?s)SELECT id, hash, .* FROM calculations WHERE id = \$1 OR hash = \$1`).
		WithArgs("h1").
		WillReturnRows(calcRow(pgxmock.NewRows(calcColumns), "existing-id", "h1", created))

	rec, wasCreated, err := s.SaveCalculation(context.Background(), sampleRecord("h1", "CC1"))
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, "existing-id", rec.ID)
	assert.True(t, decimal.RequireFromString("54500").Equal(rec.TotalTransfer))
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCalculation_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM calculations WHERE id = \$1 OR hash = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCalculation(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCalculations_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(calcColumns)
	calcRow(rows, "id-1", "h1", now)
	calcRow(rows, "id-2", "h2", now.Add(-time.Minute))

	mock.ExpectQuery(`AND client_ref = \$1 AND status = \$2 ORDER BY created_at DESC, id LIMIT \$3 OFFSET \$4`).
		WithArgs("CC1", "ready", 10, 5).
		WillReturnRows(rows)

	out, err := s.ListCalculations(context.Background(), CalculationFilter{ClientRef: "CC1", Status: "ready", Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "h2", out[1].Hash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogActivity(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO activity`).
		WithArgs(pgxmock.AnyArg(), "validation", "blocked", "CC1", "annual cap", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.LogActivity(context.Background(), Activity{
		Kind: ActivityValidation, Status: "blocked", ClientRef: "CC1", Message: "annual cap",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActivity(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM activity WHERE 1=1 AND kind = \$1 AND created_at >= \$2 ORDER BY created_at DESC, id LIMIT \$3`).
		WithArgs("request", since, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "status", "client_ref", "message", "detail", "created_at"}).
			AddRow("a1", "request", "ok", "CC1", "", json.RawMessage(`{}`), since.Add(time.Hour)))

	out, err := s.ListActivity(context.Background(), ActivityFilter{Kind: ActivityRequest, Since: since})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ActivityRequest, out[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	last := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "defaults"}).AddRow(4, 1))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM calculations GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).AddRow("ready", 3).AddRow("blocked", 1))
	mock.ExpectQuery(`SELECT kind, COUNT\(\*\) FROM activity GROUP BY kind`).
		WillReturnRows(pgxmock.NewRows([]string{"kind", "count"}).AddRow("request", 4))
	mock.ExpectQuery(`SELECT MAX\(created_at\) FROM activity`).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(&last))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.Calculations)
	assert.Equal(t, 1, st.DefaultRateCalcs)
	assert.Equal(t, map[string]int{"ready": 3, "blocked": 1}, st.ByStatus)
	assert.Equal(t, map[string]int{"request": 4}, st.Activity)
	require.NotNil(t, st.LastActivity)
	assert.Equal(t, last, *st.LastActivity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS calculations`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
