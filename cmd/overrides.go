package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/fee-cli/internal/fee"
)

// overrideFlags are the rate card flags shared by calc and prepare.
type overrideFlags struct {
	upfront      string
	amc          string
	amc45        string
	performance  string
	vat          string
	rounding     string
	investorType string
	direction    string
}

func (o *overrideFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.upfront, "upfront", "", "upfront fee rate (0.015, 1.5 or 1.5%)")
	f.StringVar(&o.amc, "amc", "", "annual management charge rate for years 1-5")
	f.StringVar(&o.amc45, "amc-4-5", "", "annual management charge rate for years 4-5")
	f.StringVar(&o.performance, "performance", "", "performance fee rate")
	f.StringVar(&o.vat, "vat", "", "VAT rate")
	f.StringVar(&o.rounding, "rounding", "", "rounding rule (nearest, up, down)")
	f.StringVar(&o.investorType, "investor-type", "", "investor type (retail, professional)")
	f.StringVar(&o.direction, "direction", "", "amount direction (gross, net)")
}

func (o *overrideFlags) overrides() (fee.Overrides, error) {
	ov := fee.Overrides{
		Rounding:     o.rounding,
		InvestorType: o.investorType,
		Direction:    o.direction,
	}
	for _, f := range []struct {
		name string
		src  string
		dst  **decimal.Decimal
	}{
		{"upfront", o.upfront, &ov.UpfrontPct},
		{"amc", o.amc, &ov.AMCPct},
		{"amc-4-5", o.amc45, &ov.AMC45Pct},
		{"performance", o.performance, &ov.PerformancePct},
		{"vat", o.vat, &ov.VATPct},
	} {
		d, err := parseRate(f.src)
		if err != nil {
			return fee.Overrides{}, eris.Wrapf(err, "--%s", f.name)
		}
		*f.dst = d
	}
	return ov, nil
}

// parseRate reads a rate flag. Empty means not overridden; a "%" suffix is
// always a percentage.
func parseRate(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	pct := strings.HasSuffix(s, "%")
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(s, "%")))
	if err != nil {
		return nil, eris.Wrapf(err, "parse rate %q", s)
	}
	if pct {
		if d.GreaterThan(decimal.NewFromInt(100)) {
			return nil, eris.Errorf("rate %q is above 100%%", s)
		}
		d = d.Div(decimal.NewFromInt(100))
	}
	return &d, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer(",", "", "£", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, eris.New("--amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "parse amount %q", s)
	}
	return d, nil
}
