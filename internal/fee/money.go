package fee

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the ISO code all amounts are quoted in.
const Currency = money.GBP

// Display formats d in the currency's minor units with its symbol and
// grouping, e.g. "£54,500.00". Sub-penny digits are rounded half to even.
func Display(d decimal.Decimal) string {
	cur := money.GetCurrency(Currency)
	factor := decimal.New(1, int32(cur.Fraction))
	minor := d.Mul(factor).RoundBank(0).IntPart()
	return money.New(minor, Currency).Display()
}

// Summary is the headline figures of a Result formatted for display.
type Summary struct {
	Gross       string `json:"gross_investment" yaml:"gross_investment"`
	Upfront     string `json:"upfront_total" yaml:"upfront_total"`
	AMC13       string `json:"amc_1_3_total" yaml:"amc_1_3_total"`
	AMC45       string `json:"amc_4_5_total" yaml:"amc_4_5_total"`
	TotalFees   string `json:"total_fees" yaml:"total_fees"`
	Transfer    string `json:"total_transfer" yaml:"total_transfer"`
	Accrued     string `json:"accrued_fees" yaml:"accrued_fees"`
	Performance string `json:"performance_fee" yaml:"performance_fee"`
}

// Summarize returns the display figures of r.
func (r *Result) Summarize() Summary {
	return Summary{
		Gross:       Display(r.GrossInvestment),
		Upfront:     Display(r.Upfront.Total),
		AMC13:       Display(r.AMC13.Total),
		AMC45:       Display(r.AMC45.Total),
		TotalFees:   Display(r.TotalFees),
		Transfer:    Display(r.TotalTransfer),
		Accrued:     Display(r.AccruedFees),
		Performance: Display(r.PerformanceFee),
	}
}
