package fee

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InvestorType selects the calculation strategy.
type InvestorType string

const (
	Retail       InvestorType = "retail"
	Professional InvestorType = "professional"
)

// ParseInvestorType accepts "retail", "professional" and "pro".
func ParseInvestorType(s string) (InvestorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "retail":
		return Retail, nil
	case "professional", "pro":
		return Professional, nil
	}
	return "", calcErr("investor_type", "unknown investor type %q", s)
}

// ClassifyFund derives the investor type from a fund classification
// string. Anything mentioning "pro" is professional; the rest is retail.
func ClassifyFund(fund string) InvestorType {
	if strings.Contains(strings.ToLower(fund), "pro") {
		return Professional
	}
	return Retail
}

// Direction says which figure the caller supplied.
type Direction string

const (
	// Gross means the caller supplied the capital to deploy; fees go on top.
	Gross Direction = "gross"
	// Net means the caller supplied the total transfer, fees included.
	Net Direction = "net"
)

// ParseDirection reads a gross/net flag. Any value starting with "n" is
// net and any starting with "g" is gross.
func ParseDirection(s string) (Direction, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(v, "n"):
		return Net, nil
	case strings.HasPrefix(v, "g"):
		return Gross, nil
	}
	return "", calcErr("direction", "unknown direction %q", s)
}

// Structure is the rate card for one calculation. Percentages are
// fractions: 0.015 is 1.5%. AMC rates are per year.
type Structure struct {
	UpfrontPct     decimal.Decimal `json:"upfront_pct" yaml:"upfront_pct"`
	AMC13Pct       decimal.Decimal `json:"amc_1_3_pct" yaml:"amc_1_3_pct"`
	AMC45Pct       decimal.Decimal `json:"amc_4_5_pct" yaml:"amc_4_5_pct"`
	PerformancePct decimal.Decimal `json:"performance_pct" yaml:"performance_pct"`
	VATPct         decimal.Decimal `json:"vat_pct" yaml:"vat_pct"`
	Rounding       RoundingRule    `json:"rounding" yaml:"rounding"`
	InvestorType   InvestorType    `json:"investor_type" yaml:"investor_type"`
}

// Validate rejects negative or out-of-range percentages and unknown enums.
func (s Structure) Validate() error {
	pcts := []struct {
		field string
		v     decimal.Decimal
	}{
		{"upfront_pct", s.UpfrontPct},
		{"amc_1_3_pct", s.AMC13Pct},
		{"amc_4_5_pct", s.AMC45Pct},
		{"performance_pct", s.PerformancePct},
		{"vat_pct", s.VATPct},
	}
	for _, p := range pcts {
		if p.v.IsNegative() {
			return calcErr(p.field, "negative percentage %s", p.v)
		}
		if p.v.GreaterThan(decimal.NewFromInt(1)) {
			return calcErr(p.field, "percentage %s exceeds 100%%", p.v)
		}
	}
	if !s.Rounding.Valid() {
		return calcErr("rounding", "unknown rounding rule %q", s.Rounding)
	}
	if s.InvestorType != "" && s.InvestorType != Retail && s.InvestorType != Professional {
		return calcErr("investor_type", "unknown investor type %q", s.InvestorType)
	}
	return nil
}
