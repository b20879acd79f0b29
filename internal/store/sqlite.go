package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS calculations (
	id                  TEXT PRIMARY KEY,
	hash                TEXT NOT NULL UNIQUE,
	client_ref          TEXT NOT NULL DEFAULT '',
	investor_name       TEXT NOT NULL DEFAULT '',
	company_name        TEXT NOT NULL DEFAULT '',
	direction           TEXT NOT NULL,
	investor_type       TEXT NOT NULL,
	amount              TEXT NOT NULL,
	gross_investment    TEXT NOT NULL,
	total_fees          TEXT NOT NULL,
	total_transfer      TEXT NOT NULL,
	using_default_rates INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL,
	result              TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS activity (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL,
	client_ref TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	detail     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_calculations_client_ref ON calculations(client_ref);
CREATE INDEX IF NOT EXISTS idx_calculations_created_at ON calculations(created_at);
CREATE INDEX IF NOT EXISTS idx_activity_kind ON activity(kind);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteCalcColumns = `id, hash, client_ref, investor_name, company_name, direction, investor_type,
	amount, gross_investment, total_fees, total_transfer, using_default_rates, status, result, created_at`

// SaveCalculation stores rec unless a record with the same hash exists, in
// which case the existing record is returned with created=false.
func (s *SQLiteStore) SaveCalculation(ctx context.Context, rec CalculationRecord) (*CalculationRecord, bool, error) {
	if rec.Hash == "" {
		return nil, false, eris.New("sqlite: calculation hash is required")
	}
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	var result any
	if len(rec.Result) > 0 {
		result = string(rec.Result)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO calculations (`+sqliteCalcColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Hash, rec.ClientRef, rec.InvestorName, rec.CompanyName, rec.Direction, rec.InvestorType,
		rec.Amount.String(), rec.GrossInvestment.String(), rec.TotalFees.String(), rec.TotalTransfer.String(),
		rec.UsingDefaultRates, rec.Status, result, rec.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: insert calculation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		existing, err := s.GetCalculation(ctx, rec.Hash)
		return existing, false, err
	}
	return &rec, true, nil
}

func (s *SQLiteStore) GetCalculation(ctx context.Context, idOrHash string) (*CalculationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCalcColumns+` FROM calculations WHERE id = ? OR hash = ? LIMIT 1`,
		idOrHash, idOrHash,
	)
	rec, err := scanCalculation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: calculation %s", idOrHash)
	}
	return rec, err
}

func (s *SQLiteStore) ListCalculations(ctx context.Context, filter CalculationFilter) ([]CalculationRecord, error) {
	query := `SELECT ` + sqliteCalcColumns + ` FROM calculations WHERE 1=1`
	var args []any

	if filter.ClientRef != "" {
		query += ` AND client_ref = ?`
		args = append(args, filter.ClientRef)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list calculations")
	}
	defer rows.Close() //nolint:errcheck

	var out []CalculationRecord
	for rows.Next() {
		rec, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list calculations iterate")
}

func (s *SQLiteStore) LogActivity(ctx context.Context, a Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var detail any
	if len(a.Detail) > 0 {
		detail = string(a.Detail)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity (id, kind, status, client_ref, message, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Status, a.ClientRef, a.Message, detail, a.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert activity")
}

func (s *SQLiteStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	query := `SELECT id, kind, status, client_ref, message, detail, created_at FROM activity WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity")
	}
	defer rows.Close() //nolint:errcheck

	var out []Activity
	for rows.Next() {
		var (
			a      Activity
			kind   string
			detail sql.NullString
		)
		if err := rows.Scan(&a.ID, &kind, &a.Status, &a.ClientRef, &a.Message, &detail, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		a.Kind = ActivityKind(kind)
		if detail.Valid {
			a.Detail = []byte(detail.String)
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list activity iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := newStats()

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(using_default_rates), 0) FROM calculations`,
	).Scan(&st.Calculations, &st.DefaultRateCalcs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count calculations")
	}

	if err := s.groupCounts(ctx, `SELECT status, COUNT(*) FROM calculations GROUP BY status`, st.ByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, `SELECT kind, COUNT(*) FROM activity GROUP BY kind`, st.Activity); err != nil {
		return nil, err
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx, `SELECT created_at FROM activity ORDER BY created_at DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: last activity")
	default:
		st.LastActivity = &last
	}
	return st, nil
}

func (s *SQLiteStore) groupCounts(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return eris.Wrap(err, "sqlite: group counts")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return eris.Wrap(err, "sqlite: scan group count")
		}
		into[key] = n
	}
	return eris.Wrap(rows.Err(), "sqlite: group counts iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCalculation(row scannable) (*CalculationRecord, error) {
	var (
		rec                           CalculationRecord
		amount, gross, fees, transfer string
		result                        sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Hash, &rec.ClientRef, &rec.InvestorName, &rec.CompanyName,
		&rec.Direction, &rec.InvestorType, &amount, &gross, &fees, &transfer,
		&rec.UsingDefaultRates, &rec.Status, &result, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan calculation")
	}
	if err := parseAmounts(&rec, amount, gross, fees, transfer); err != nil {
		return nil, err
	}
	if result.Valid {
		rec.Result = []byte(result.String)
	}
	return &rec, nil
}
