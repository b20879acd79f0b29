package fee

import "github.com/shopspring/decimal"

// Component is one fee line before and after VAT.
type Component struct {
	ExVAT decimal.Decimal `json:"ex_vat" yaml:"ex_vat"`
	VAT   decimal.Decimal `json:"vat" yaml:"vat"`
	Total decimal.Decimal `json:"total" yaml:"total"`
}

// Result is a complete fee calculation. It is never modified after
// Calculate returns it.
type Result struct {
	Direction    Direction    `json:"direction" yaml:"direction"`
	InvestorType InvestorType `json:"investor_type" yaml:"investor_type"`
	// Method tags the formula family, e.g. "net_retail".
	Method string `json:"calculation_method" yaml:"calculation_method"`

	// GrossInvestment is the capital deployed into the company.
	GrossInvestment decimal.Decimal `json:"gross_investment" yaml:"gross_investment"`
	// NetInvestment is the capital deployed after fees are paid on top, and
	// always equals GrossInvestment.
	NetInvestment decimal.Decimal `json:"net_investment" yaml:"net_investment"`

	Upfront        Component       `json:"upfront" yaml:"upfront"`
	AMCBase        decimal.Decimal `json:"amc_base" yaml:"amc_base"`
	AMC13          Component       `json:"amc_1_3" yaml:"amc_1_3"`
	AMC45          Component       `json:"amc_4_5" yaml:"amc_4_5"`
	PerformanceFee decimal.Decimal `json:"performance_fee" yaml:"performance_fee"`

	// TotalFees is the immediate fee: upfront plus AMC years 1-3.
	TotalFees     decimal.Decimal `json:"total_fees" yaml:"total_fees"`
	TotalTransfer decimal.Decimal `json:"total_transfer" yaml:"total_transfer"`
	// AccruedFees is the AMC for years 4-5, reported but not transferred.
	AccruedFees decimal.Decimal `json:"accrued_fees" yaml:"accrued_fees"`

	Structure      Structure      `json:"structure" yaml:"structure"`
	Steps          []Step         `json:"steps" yaml:"steps"`
	Reconciliation Reconciliation `json:"reconciliation" yaml:"reconciliation"`
	Hash           string         `json:"hash" yaml:"hash"`
}

// AMCRate13 returns the three-year AMC rate charged upfront.
func (s Structure) AMCRate13() decimal.Decimal { return s.AMC13Pct.Mul(decimal.NewFromInt(3)) }

// AMCRate45 returns the two-year AMC rate accrued for years 4-5.
func (s Structure) AMCRate45() decimal.Decimal { return s.AMC45Pct.Mul(decimal.NewFromInt(2)) }
