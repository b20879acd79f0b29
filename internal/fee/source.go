package fee

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/fee-cli/internal/model"
)

// Defaults are the configured rates used when no fee row matched, and for
// VAT and rounding, which fee rows never carry.
type Defaults struct {
	UpfrontPct     float64 `yaml:"upfront_pct" mapstructure:"upfront_pct"`
	AMC13Pct       float64 `yaml:"amc_1_3_pct" mapstructure:"amc_1_3_pct"`
	AMC45Pct       float64 `yaml:"amc_4_5_pct" mapstructure:"amc_4_5_pct"`
	PerformancePct float64 `yaml:"performance_pct" mapstructure:"performance_pct"`
	VATPct         float64 `yaml:"vat_pct" mapstructure:"vat_pct"`
	Rounding       string  `yaml:"rounding" mapstructure:"rounding"`
	InvestorType   string  `yaml:"investor_type" mapstructure:"investor_type"`
	Direction      string  `yaml:"direction" mapstructure:"direction"`
}

// DefaultRates returns the house default fee structure.
func DefaultRates() Defaults {
	return Defaults{
		UpfrontPct:     0.015,
		AMC13Pct:       0.02,
		AMC45Pct:       0.02,
		PerformancePct: 0.20,
		VATPct:         0.20,
		Rounding:       string(RoundNearest),
		InvestorType:   string(Retail),
		Direction:      string(Net),
	}
}

// Overrides are caller-supplied values that beat both the fee row and the
// defaults. Nil fields are not overridden.
type Overrides struct {
	UpfrontPct     *decimal.Decimal `json:"upfront_pct,omitempty"`
	AMCPct         *decimal.Decimal `json:"amc_pct,omitempty"`
	AMC45Pct       *decimal.Decimal `json:"amc_4_5_pct,omitempty"`
	PerformancePct *decimal.Decimal `json:"performance_pct,omitempty"`
	VATPct         *decimal.Decimal `json:"vat_pct,omitempty"`
	Rounding       string           `json:"rounding,omitempty"`
	InvestorType   string           `json:"investor_type,omitempty"`
	Direction      string           `json:"direction,omitempty"`
}

// Origin names where a structure field came from.
type Origin string

const (
	FromOverride Origin = "override"
	FromFeeRow   Origin = "fee_row"
	FromDefault  Origin = "default"
)

// Source describes how a structure was assembled.
type Source struct {
	// UsingDefaultRates is set when no fee row matched and the house
	// defaults were substituted. Callers must surface it.
	UsingDefaultRates bool              `json:"using_default_rates" yaml:"using_default_rates"`
	Direction         Direction         `json:"direction" yaml:"direction"`
	Fields            map[string]Origin `json:"fields" yaml:"fields"`
}

// CoercePct reads a rate that may be written as a fraction (0.015) or as a
// percentage (1.5). Values above 1 are percentages.
func CoercePct(d decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return d.Div(decimal.NewFromInt(100))
	}
	return d
}

// ResolveStructure assembles a rate card with the precedence caller
// overrides, then fee row, then defaults. A nil row means no fee row
// matched. The fee row's single AMC rate applies to both AMC periods.
// Override and default rates go through CoercePct; fee-row rates are
// already fractions and are used as they are.
func ResolveStructure(row *model.FeeRow, def Defaults, ov Overrides) (Structure, Source, error) {
	src := Source{UsingDefaultRates: row == nil, Fields: map[string]Origin{}}
	var s Structure

	pick := func(field string, override *decimal.Decimal, fromRow decimal.NullDecimal, fallback float64) decimal.Decimal {
		switch {
		case override != nil:
			src.Fields[field] = FromOverride
			return CoercePct(*override)
		case row != nil && fromRow.Valid:
			// Fee rows arrive as fractions; the workbook parser has already
			// resolved percent notation.
			src.Fields[field] = FromFeeRow
			return fromRow.Decimal
		default:
			src.Fields[field] = FromDefault
			return CoercePct(decimal.NewFromFloat(fallback))
		}
	}

	var rowUp, rowAMC, rowCarry decimal.NullDecimal
	if row != nil {
		rowUp, rowAMC, rowCarry = row.UpfrontPct, row.AMCPct, row.CarryPct
	}

	s.UpfrontPct = pick("upfront_pct", ov.UpfrontPct, rowUp, def.UpfrontPct)
	s.AMC13Pct = pick("amc_1_3_pct", ov.AMCPct, rowAMC, def.AMC13Pct)
	amc45 := ov.AMC45Pct
	if amc45 == nil {
		amc45 = ov.AMCPct
	}
	s.AMC45Pct = pick("amc_4_5_pct", amc45, rowAMC, def.AMC45Pct)
	s.PerformancePct = pick("performance_pct", ov.PerformancePct, rowCarry, def.PerformancePct)
	s.VATPct = pick("vat_pct", ov.VATPct, decimal.NullDecimal{}, def.VATPct)

	rounding := def.Rounding
	src.Fields["rounding"] = FromDefault
	if ov.Rounding != "" {
		rounding = ov.Rounding
		src.Fields["rounding"] = FromOverride
	}
	rule, err := ParseRoundingRule(rounding)
	if err != nil {
		return Structure{}, Source{}, eris.Wrap(err, "fee: resolve rounding")
	}
	s.Rounding = rule

	switch {
	case ov.InvestorType != "":
		t, err := ParseInvestorType(ov.InvestorType)
		if err != nil {
			return Structure{}, Source{}, eris.Wrap(err, "fee: resolve investor type")
		}
		s.InvestorType = t
		src.Fields["investor_type"] = FromOverride
	case row != nil && strings.TrimSpace(row.Fund) != "":
		s.InvestorType = ClassifyFund(row.Fund)
		src.Fields["investor_type"] = FromFeeRow
	default:
		t, err := ParseInvestorType(def.InvestorType)
		if err != nil {
			return Structure{}, Source{}, eris.Wrap(err, "fee: resolve default investor type")
		}
		s.InvestorType = t
		src.Fields["investor_type"] = FromDefault
	}

	dir, origin, err := resolveDirection(row, def, ov)
	if err != nil {
		return Structure{}, Source{}, err
	}
	src.Direction = dir
	src.Fields["direction"] = origin

	if err := s.Validate(); err != nil {
		return Structure{}, Source{}, err
	}
	return s, src, nil
}

func resolveDirection(row *model.FeeRow, def Defaults, ov Overrides) (Direction, Origin, error) {
	if ov.Direction != "" {
		d, err := ParseDirection(ov.Direction)
		if err != nil {
			return "", "", eris.Wrap(err, "fee: resolve direction")
		}
		return d, FromOverride, nil
	}
	if row != nil && strings.TrimSpace(row.GrossNet) != "" {
		if d, err := ParseDirection(row.GrossNet); err == nil {
			return d, FromFeeRow, nil
		}
	}
	d, err := ParseDirection(def.Direction)
	if err != nil {
		return "", "", eris.Wrap(err, "fee: resolve default direction")
	}
	return d, FromDefault, nil
}
