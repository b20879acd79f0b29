package fee

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fee-cli/internal/model"
)

func TestRoundingRule_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule RoundingRule
		in   string
		want string
	}{
		{RoundNearest, "1.005", "1.00"},
		{RoundNearest, "1.015", "1.02"},
		{RoundNearest, "1.0151", "1.02"},
		{RoundNearest, "-1.005", "-1.00"},
		{RoundUp, "1.001", "1.01"},
		{RoundUp, "1.00", "1.00"},
		{RoundDown, "1.009", "1.00"},
		{RoundDown, "2.5", "2.50"},
	}
	for _, tt := range tests {
		t.Run(string(tt.rule)+"/"+tt.in, func(t *testing.T) {
			t.Parallel()
			assertDec(t, tt.want, tt.rule.Apply(d(tt.in)))
		})
	}
}

func TestParseRoundingRule(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]RoundingRule{
		"nearest": RoundNearest,
		"banker":  RoundNearest,
		"Bankers": RoundNearest,
		" up ":    RoundUp,
		"DOWN":    RoundDown,
	} {
		got, err := ParseRoundingRule(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRoundingRule("sometimes")
	var ce *CalculationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "rounding", ce.Field)
}

func TestParseDirection(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Direction{
		"Gross": Gross,
		"g":     Gross,
		"NET":   Net,
		" net ": Net,
		"n":     Net,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDirection("")
	assert.Error(t, err)
	_, err = ParseDirection("total")
	assert.Error(t, err)
}

func TestParseInvestorType(t *testing.T) {
	t.Parallel()

	got, err := ParseInvestorType("Pro")
	require.NoError(t, err)
	assert.Equal(t, Professional, got)

	got, err = ParseInvestorType("retail")
	require.NoError(t, err)
	assert.Equal(t, Retail, got)

	_, err = ParseInvestorType("institutional")
	assert.Error(t, err)
}

func TestClassifyFund(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Professional, ClassifyFund("Professional EIS Fund"))
	assert.Equal(t, Professional, ClassifyFund("PRO"))
	assert.Equal(t, Retail, ClassifyFund("Retail"))
	assert.Equal(t, Retail, ClassifyFund(""))
}

func TestCoercePct(t *testing.T) {
	t.Parallel()

	assertDec(t, "0.015", CoercePct(d("1.5")))
	assertDec(t, "0.015", CoercePct(d("0.015")))
	assertDec(t, "1", CoercePct(d("1")))
	assertDec(t, "0.2", CoercePct(d("20")))
}

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func TestResolveStructure_Defaults(t *testing.T) {
	t.Parallel()

	s, src, err := ResolveStructure(nil, DefaultRates(), Overrides{})
	require.NoError(t, err)

	assert.True(t, src.UsingDefaultRates)
	assertDec(t, "0.015", s.UpfrontPct)
	assertDec(t, "0.02", s.AMC13Pct)
	assertDec(t, "0.02", s.AMC45Pct)
	assertDec(t, "0.2", s.PerformancePct)
	assertDec(t, "0.2", s.VATPct)
	assert.Equal(t, RoundNearest, s.Rounding)
	assert.Equal(t, Retail, s.InvestorType)
	assert.Equal(t, Net, src.Direction)
	assert.Equal(t, FromDefault, src.Fields["upfront_pct"])
}

func TestResolveStructure_FeeRow(t *testing.T) {
	t.Parallel()

	row := &model.FeeRow{
		Fund:       "Professional",
		GrossNet:   "Gross",
		UpfrontPct: nd("0.025"),
		AMCPct:     nd("0.0175"),
		CarryPct:   nd("0.2"),
	}
	s, src, err := ResolveStructure(row, DefaultRates(), Overrides{})
	require.NoError(t, err)

	assert.False(t, src.UsingDefaultRates)
	assertDec(t, "0.025", s.UpfrontPct)
	assertDec(t, "0.0175", s.AMC13Pct)
	assertDec(t, "0.0175", s.AMC45Pct)
	assertDec(t, "0.2", s.PerformancePct)
	assert.Equal(t, Professional, s.InvestorType)
	assert.Equal(t, Gross, src.Direction)
	assert.Equal(t, FromFeeRow, src.Fields["amc_4_5_pct"])
	assert.Equal(t, FromDefault, src.Fields["vat_pct"])
}

func TestResolveStructure_FeeRowRatesNotRescaled(t *testing.T) {
	t.Parallel()

	// A cell written "150%" reaches the row as 1.5 and must be rejected,
	// not read a second time as 1.5%.
	row := &model.FeeRow{Fund: "Retail", GrossNet: "Gross", UpfrontPct: nd("1.5"), AMCPct: nd("0.02")}
	_, _, err := ResolveStructure(row, DefaultRates(), Overrides{})
	require.Error(t, err)

	var ce *CalculationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "upfront_pct", ce.Field)

	row.UpfrontPct = nd("0.015")
	s, _, err := ResolveStructure(row, DefaultRates(), Overrides{})
	require.NoError(t, err)
	assertDec(t, "0.015", s.UpfrontPct)
}

func TestResolveStructure_OverridesWin(t *testing.T) {
	t.Parallel()

	row := &model.FeeRow{Fund: "Retail", GrossNet: "Net", UpfrontPct: nd("0.03"), AMCPct: nd("0.02")}
	up := d("1")
	vat := d("0")
	s, src, err := ResolveStructure(row, DefaultRates(), Overrides{
		UpfrontPct:   &up,
		VATPct:       &vat,
		Rounding:     "down",
		InvestorType: "professional",
		Direction:    "gross",
	})
	require.NoError(t, err)

	assertDec(t, "1", s.UpfrontPct)
	assertDec(t, "0", s.VATPct)
	assertDec(t, "0.02", s.AMC13Pct)
	assert.Equal(t, RoundDown, s.Rounding)
	assert.Equal(t, Professional, s.InvestorType)
	assert.Equal(t, Gross, src.Direction)
	assert.Equal(t, FromOverride, src.Fields["upfront_pct"])
	assert.Equal(t, FromFeeRow, src.Fields["amc_1_3_pct"])
}

func TestResolveStructure_Invalid(t *testing.T) {
	t.Parallel()

	_, _, err := ResolveStructure(nil, DefaultRates(), Overrides{Rounding: "wobbly"})
	assert.Error(t, err)

	_, _, err = ResolveStructure(nil, DefaultRates(), Overrides{Direction: "sideways"})
	assert.Error(t, err)

	neg := d("-0.5")
	_, _, err = ResolveStructure(nil, DefaultRates(), Overrides{AMCPct: &neg})
	var ce *CalculationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "amc_1_3_pct", ce.Field)
}

func TestDisplay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "£54,500.00", Display(d("54500")))
	assert.Equal(t, "£0.01", Display(d("0.005001")))
	assert.Equal(t, "£1,234,567.89", Display(d("1234567.89")))
}
