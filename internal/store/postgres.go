package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fee-cli/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const pgCalcColumns = `id, hash, client_ref, investor_name, company_name, direction, investor_type,
	amount::text, gross_investment::text, total_fees::text, total_transfer::text,
	using_default_rates, status, result, created_at`

// preparedStatements lists queries prepared on each new connection.
var preparedStatements = map[string]string{
	"insert_calculation": `INSERT INTO calculations (id, hash, client_ref, investor_name, company_name, direction, investor_type,
		amount, gross_investment, total_fees, total_transfer, using_default_rates, status, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (hash) DO NOTHING`,
	"get_calculation": `SELECT ` + pgCalcColumns + ` FROM calculations WHERE id = $1 OR hash = $1 LIMIT 1`,
	"insert_activity": `INSERT INTO activity (id, kind, status, client_ref, message, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS calculations (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	hash                TEXT NOT NULL UNIQUE,
	client_ref          TEXT NOT NULL DEFAULT '',
	investor_name       TEXT NOT NULL DEFAULT '',
	company_name        TEXT NOT NULL DEFAULT '',
	direction           TEXT NOT NULL,
	investor_type       TEXT NOT NULL,
	amount              NUMERIC(18,2) NOT NULL,
	gross_investment    NUMERIC(18,2) NOT NULL,
	total_fees          NUMERIC(18,2) NOT NULL,
	total_transfer      NUMERIC(18,2) NOT NULL,
	using_default_rates BOOLEAN NOT NULL DEFAULT false,
	status              TEXT NOT NULL,
	result              JSONB,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activity (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL,
	client_ref TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	detail     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calculations_client_ref ON calculations(client_ref);
CREATE INDEX IF NOT EXISTS idx_calculations_created_at ON calculations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_activity_kind_created ON activity(kind, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveCalculation(ctx context.Context, rec CalculationRecord) (*CalculationRecord, bool, error) {
	if rec.Hash == "" {
		return nil, false, eris.New("postgres: calculation hash is required")
	}
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC()

	var result []byte
	if len(rec.Result) > 0 {
		result = rec.Result
	}

	tag, err := s.pool.Exec(ctx, preparedStatements["insert_calculation"],
		rec.ID, rec.Hash, rec.ClientRef, rec.InvestorName, rec.CompanyName, rec.Direction, rec.InvestorType,
		rec.Amount.String(), rec.GrossInvestment.String(), rec.TotalFees.String(), rec.TotalTransfer.String(),
		rec.UsingDefaultRates, rec.Status, result, rec.CreatedAt,
	)
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: insert calculation")
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.GetCalculation(ctx, rec.Hash)
		return existing, false, err
	}
	return &rec, true, nil
}

func (s *PostgresStore) GetCalculation(ctx context.Context, idOrHash string) (*CalculationRecord, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_calculation"], idOrHash)
	rec, err := scanPgCalculation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: calculation %s", idOrHash)
	}
	return rec, err
}

func (s *PostgresStore) ListCalculations(ctx context.Context, filter CalculationFilter) ([]CalculationRecord, error) {
	query := `SELECT ` + pgCalcColumns + ` FROM calculations WHERE 1=1`
	var args []any

	if filter.ClientRef != "" {
		args = append(args, filter.ClientRef)
		query += ` AND client_ref = $` + itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = $` + itoa(len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += ` ORDER BY created_at DESC, id LIMIT $` + itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list calculations")
	}
	defer rows.Close()

	var out []CalculationRecord
	for rows.Next() {
		rec, err := scanPgCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list calculations iterate")
}

func (s *PostgresStore) LogActivity(ctx context.Context, a Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var detail []byte
	if len(a.Detail) > 0 {
		detail = a.Detail
	}
	_, err := s.pool.Exec(ctx, preparedStatements["insert_activity"],
		a.ID, string(a.Kind), a.Status, a.ClientRef, a.Message, detail, a.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert activity")
}

func (s *PostgresStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	query := `SELECT id, kind, status, client_ref, message, detail, created_at FROM activity WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += ` AND kind = $` + itoa(len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += ` AND created_at >= $` + itoa(len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += ` ORDER BY created_at DESC, id LIMIT $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activity")
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var (
			a    Activity
			kind string
		)
		if err := rows.Scan(&a.ID, &kind, &a.Status, &a.ClientRef, &a.Message, &a.Detail, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		a.Kind = ActivityKind(kind)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list activity iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := newStats()

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE using_default_rates) FROM calculations`,
	).Scan(&st.Calculations, &st.DefaultRateCalcs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count calculations")
	}

	if err := s.groupCounts(ctx, `SELECT status, COUNT(*) FROM calculations GROUP BY status`, st.ByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCounts(ctx, `SELECT kind, COUNT(*) FROM activity GROUP BY kind`, st.Activity); err != nil {
		return nil, err
	}

	var last *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM activity`).Scan(&last); err != nil {
		return nil, eris.Wrap(err, "postgres: last activity")
	}
	st.LastActivity = last
	return st, nil
}

func (s *PostgresStore) groupCounts(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return eris.Wrap(err, "postgres: group counts")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return eris.Wrap(err, "postgres: scan group count")
		}
		into[key] = n
	}
	return eris.Wrap(rows.Err(), "postgres: group counts iterate")
}

func scanPgCalculation(row pgx.Row) (*CalculationRecord, error) {
	var (
		rec                           CalculationRecord
		amount, gross, fees, transfer string
	)
	err := row.Scan(&rec.ID, &rec.Hash, &rec.ClientRef, &rec.InvestorName, &rec.CompanyName,
		&rec.Direction, &rec.InvestorType, &amount, &gross, &fees, &transfer,
		&rec.UsingDefaultRates, &rec.Status, &rec.Result, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan calculation")
	}
	if err := parseAmounts(&rec, amount, gross, fees, transfer); err != nil {
		return nil, err
	}
	return &rec, nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
