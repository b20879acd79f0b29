package fee

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func standardStructure() Structure {
	return Structure{
		UpfrontPct:     d("0.015"),
		AMC13Pct:       d("0.02"),
		AMC45Pct:       d("0.015"),
		PerformancePct: d("0.20"),
		VATPct:         d("0.20"),
		Rounding:       RoundNearest,
	}
}

func TestCalculate_GrossProfessional(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	res, err := c.Calculate(d("50000"), Gross, Professional, standardStructure())
	require.NoError(t, err)

	assertDec(t, "750.00", res.Upfront.ExVAT)
	assertDec(t, "150.00", res.Upfront.VAT)
	assertDec(t, "900.00", res.Upfront.Total)
	assertDec(t, "50000", res.AMCBase)
	assertDec(t, "3000.00", res.AMC13.ExVAT)
	assertDec(t, "600.00", res.AMC13.VAT)
	assertDec(t, "3600.00", res.AMC13.Total)
	assertDec(t, "1500.00", res.AMC45.ExVAT)
	assertDec(t, "1800.00", res.AMC45.Total)
	assertDec(t, "1800.00", res.AccruedFees)
	assertDec(t, "4500.00", res.TotalFees)
	assertDec(t, "54500.00", res.TotalTransfer)
	assertDec(t, "50000", res.GrossInvestment)
	assertDec(t, "50000", res.NetInvestment)
	assertDec(t, "0", res.PerformanceFee)
	assert.Equal(t, "gross_professional", res.Method)

	assert.True(t, res.Reconciliation.Balanced)
	assertDec(t, "0", res.Reconciliation.Variance)
	assertDec(t, "50000", res.Reconciliation.Recomputed)
	assert.Len(t, res.Hash, 16)
}

func TestCalculate_NetProfessional(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	res, err := c.Calculate(d("54500.00"), Net, Professional, standardStructure())
	require.NoError(t, err)

	assertDec(t, "50000", res.GrossInvestment)
	assertDec(t, "54500", res.TotalTransfer)
	assertDec(t, "4500", res.TotalFees)
	assert.Equal(t, "net_professional", res.Method)
	assert.Equal(t, "net_supplied", res.Steps[0].Op)
	assertDec(t, "0", res.Reconciliation.Variance)
}

func TestCalculate_GrossRetail(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	res, err := c.Calculate(d("50000"), Gross, Retail, standardStructure())
	require.NoError(t, err)

	assertDec(t, "900", res.Upfront.Total)
	assertDec(t, "49100", res.AMCBase)
	assertDec(t, "2946", res.AMC13.ExVAT)
	assertDec(t, "589.20", res.AMC13.VAT)
	assertDec(t, "3535.20", res.AMC13.Total)
	assertDec(t, "1767.60", res.AMC45.Total)
	assertDec(t, "4435.20", res.TotalFees)
	assertDec(t, "54435.20", res.TotalTransfer)
}

func TestCalculate_NetRetail(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	res, err := c.Calculate(d("54435.20"), Net, Retail, standardStructure())
	require.NoError(t, err)
	assertDec(t, "50000", res.GrossInvestment)
	assertDec(t, "54435.20", res.TotalTransfer)
}

func TestCalculate_RetailProfessionalDivergence(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})
	s := standardStructure()

	amounts := []string{"50000", "12345.67", "250000", "1000"}
	for _, a := range amounts {
		pro, err := c.Calculate(d(a), Gross, Professional, s)
		require.NoError(t, err)
		ret, err := c.Calculate(d(a), Gross, Retail, s)
		require.NoError(t, err)

		assert.True(t, pro.AMCBase.Equal(d(a)), a)
		assert.True(t, ret.AMCBase.Equal(d(a).Sub(ret.Upfront.Total)), a)

		cross := ret.Upfront.Total.Mul(s.AMCRate13()).Mul(decimal.NewFromInt(1).Add(s.VATPct))
		diff := pro.TotalTransfer.Sub(ret.TotalTransfer)
		assert.True(t, diff.Sub(cross).Abs().LessThanOrEqual(d("0.02")), "amount %s: diff %s cross %s", a, diff, cross)
	}

	pro, _ := c.Calculate(d("50000"), Gross, Professional, s)
	ret, _ := c.Calculate(d("50000"), Gross, Retail, s)
	assertDec(t, "64.80", pro.TotalTransfer.Sub(ret.TotalTransfer))
}

func TestCalculate_VATScaling(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	withVAT := standardStructure()
	noVAT := standardStructure()
	noVAT.VATPct = decimal.Zero

	a, err := c.Calculate(d("50000"), Gross, Professional, withVAT)
	require.NoError(t, err)
	b, err := c.Calculate(d("50000"), Gross, Professional, noVAT)
	require.NoError(t, err)

	scale := d("1.20")
	assertDec(t, b.Upfront.Total.Mul(scale).String(), a.Upfront.Total)
	assertDec(t, b.AMC13.Total.Mul(scale).String(), a.AMC13.Total)
	assertDec(t, b.TotalFees.Mul(scale).String(), a.TotalFees)
}

func TestCalculate_Idempotent(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	a, err := c.Calculate(d("73210.55"), Net, Retail, standardStructure())
	require.NoError(t, err)
	b, err := c.Calculate(d("73210.55"), Net, Retail, standardStructure())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := c.Calculate(d("73210.56"), Net, Retail, standardStructure())
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, other.Hash)
}

func TestCalculate_Errors(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	negative := standardStructure()
	negative.AMC13Pct = d("-0.01")

	huge := standardStructure()
	huge.UpfrontPct = d("1.5")

	badRounding := standardStructure()
	badRounding.Rounding = "sideways"

	allUpfront := standardStructure()
	allUpfront.UpfrontPct = d("1")

	degenerate := Structure{UpfrontPct: d("1"), AMC13Pct: d("1"), VATPct: d("1"), Rounding: RoundNearest}

	tests := []struct {
		name   string
		amount string
		dir    Direction
		typ    InvestorType
		s      Structure
		field  string
	}{
		{"zero amount", "0", Gross, Retail, standardStructure(), "amount"},
		{"negative amount", "-10", Net, Retail, standardStructure(), "amount"},
		{"negative pct", "1000", Gross, Retail, negative, "amc_1_3_pct"},
		{"pct over 100", "1000", Gross, Retail, huge, "upfront_pct"},
		{"bad rounding", "1000", Gross, Retail, badRounding, "rounding"},
		{"bad direction", "1000", Direction("sideways"), Retail, standardStructure(), "direction"},
		{"bad investor type", "1000", Gross, InvestorType("whale"), standardStructure(), "investor_type"},
		{"no amc base", "1000", Gross, Retail, allUpfront, "upfront_pct"},
		{"degenerate multiplier", "1000", Net, Retail, degenerate, "multiplier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := c.Calculate(d(tt.amount), tt.dir, tt.typ, tt.s)
			require.Error(t, err)
			assert.Nil(t, res)

			var ce *CalculationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCalculate_StepsAudit(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	res, err := c.Calculate(d("50000"), Gross, Professional, standardStructure())
	require.NoError(t, err)

	ops := make([]string, 0, len(res.Steps))
	for _, s := range res.Steps {
		ops = append(ops, s.Op)
	}
	assert.Equal(t, []string{
		"gross_investment",
		"upfront_ex_vat", "upfront_vat", "upfront_total",
		"amc_base",
		"amc_1_3_ex_vat", "amc_1_3_vat", "amc_1_3_total",
		"amc_4_5_ex_vat", "amc_4_5_vat", "amc_4_5_total",
		"total_fees", "total_transfer",
		"performance_fee",
	}, ops)

	last := res.Steps[len(res.Steps)-1]
	require.Len(t, last.Inputs, 1)
	assert.Equal(t, "performance_pct", last.Inputs[0].Name)
	assertDec(t, "0.20", last.Inputs[0].Value)
}

func TestCalculate_RoundsSupplied(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	tests := []struct {
		name   string
		rule   RoundingRule
		amount string
		want   string
	}{
		{"nearest", RoundNearest, "1000.004", "1000"},
		{"nearest half even", RoundNearest, "1000.125", "1000.12"},
		{"up", RoundUp, "1000.001", "1000.01"},
		{"down", RoundDown, "1000.009", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := standardStructure()
			s.Rounding = tt.rule

			res, err := c.Calculate(d(tt.amount), Gross, Professional, s)
			require.NoError(t, err)
			assertDec(t, tt.want, res.GrossInvestment)
		})
	}
}

func TestCalculate_AmountRoundsToZero(t *testing.T) {
	t.Parallel()
	c := NewCalculator(Options{})

	s := standardStructure()
	s.Rounding = RoundDown
	_, err := c.Calculate(d("0.009"), Gross, Retail, s)
	require.Error(t, err)

	var ce *CalculationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "amount", ce.Field)
}

func TestHash(t *testing.T) {
	t.Parallel()

	s := standardStructure()
	h1, err := Hash(d("50000"), Gross, Retail, s)
	require.NoError(t, err)

	padded := s
	padded.UpfrontPct = d("0.0150")
	h2, err := Hash(d("50000.00"), Gross, Retail, padded)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := Hash(d("50000"), Net, Retail, s)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	h4, err := Hash(d("50000"), Gross, Professional, s)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}
