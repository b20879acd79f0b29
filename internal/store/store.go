// Package store persists calculation records and the activity log.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a calculation record does not exist.
var ErrNotFound = eris.New("store: not found")

// ActivityKind classifies an activity log entry.
type ActivityKind string

const (
	ActivityRequest     ActivityKind = "request"
	ActivityValidation  ActivityKind = "validation"
	ActivityCalculation ActivityKind = "calculation"
	ActivityRefresh     ActivityKind = "refresh"
)

// CalculationRecord is one stored fee calculation, keyed by its hash.
type CalculationRecord struct {
	ID                string          `json:"id" yaml:"id"`
	Hash              string          `json:"hash" yaml:"hash"`
	ClientRef         string          `json:"client_ref,omitempty" yaml:"client_ref,omitempty"`
	InvestorName      string          `json:"investor_name,omitempty" yaml:"investor_name,omitempty"`
	CompanyName       string          `json:"company_name,omitempty" yaml:"company_name,omitempty"`
	Direction         string          `json:"direction" yaml:"direction"`
	InvestorType      string          `json:"investor_type" yaml:"investor_type"`
	Amount            decimal.Decimal `json:"amount" yaml:"amount"`
	GrossInvestment   decimal.Decimal `json:"gross_investment" yaml:"gross_investment"`
	TotalFees         decimal.Decimal `json:"total_fees" yaml:"total_fees"`
	TotalTransfer     decimal.Decimal `json:"total_transfer" yaml:"total_transfer"`
	UsingDefaultRates bool            `json:"using_default_rates" yaml:"using_default_rates"`
	Status            string          `json:"status" yaml:"status"`
	Result            json.RawMessage `json:"result,omitempty" yaml:"-"`
	CreatedAt         time.Time       `json:"created_at" yaml:"created_at"`
}

// Activity is one entry of the activity log.
type Activity struct {
	ID        string          `json:"id" yaml:"id"`
	Kind      ActivityKind    `json:"kind" yaml:"kind"`
	Status    string          `json:"status" yaml:"status"`
	ClientRef string          `json:"client_ref,omitempty" yaml:"client_ref,omitempty"`
	Message   string          `json:"message,omitempty" yaml:"message,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty" yaml:"-"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
}

// CalculationFilter specifies criteria for listing calculations.
type CalculationFilter struct {
	ClientRef string `json:"client_ref,omitempty"`
	Status    string `json:"status,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// ActivityFilter specifies criteria for listing activity.
type ActivityFilter struct {
	Kind  ActivityKind `json:"kind,omitempty"`
	Since time.Time    `json:"since,omitempty"`
	Limit int          `json:"limit,omitempty"`
}

// Stats summarizes the store contents.
type Stats struct {
	Calculations     int            `json:"calculations" yaml:"calculations"`
	DefaultRateCalcs int            `json:"default_rate_calculations" yaml:"default_rate_calculations"`
	ByStatus         map[string]int `json:"by_status" yaml:"by_status"`
	Activity         map[string]int `json:"activity" yaml:"activity"`
	LastActivity     *time.Time     `json:"last_activity,omitempty" yaml:"last_activity,omitempty"`
}

// Store defines the persistence interface for calculations and activity.
type Store interface {
	// Calculations
	SaveCalculation(ctx context.Context, rec CalculationRecord) (*CalculationRecord, bool, error)
	GetCalculation(ctx context.Context, idOrHash string) (*CalculationRecord, error)
	ListCalculations(ctx context.Context, filter CalculationFilter) ([]CalculationRecord, error)

	// Activity
	LogActivity(ctx context.Context, a Activity) error
	ListActivity(ctx context.Context, filter ActivityFilter) ([]Activity, error)

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func newStats() *Stats {
	return &Stats{ByStatus: map[string]int{}, Activity: map[string]int{}}
}

func parseAmounts(rec *CalculationRecord, amount, gross, fees, transfer string) error {
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.Amount, amount},
		{&rec.GrossInvestment, gross},
		{&rec.TotalFees, fees},
		{&rec.TotalTransfer, transfer},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return eris.Wrapf(err, "store: parse amount %q", f.src)
		}
		*f.dst = d
	}
	return nil
}

// Open returns the store for driver ("sqlite" or "postgres"). poolCfg only
// applies to postgres and may be nil.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
