package fee

import (
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Options tunes the inverse search and the reconciliation check.
type Options struct {
	// AlignmentUnits bounds how many pennies either side of the closed-form
	// gross the inverse will try when aligning with the forward algorithm.
	AlignmentUnits int `yaml:"alignment_units" mapstructure:"alignment_units"`
	// Tolerance is the largest reconciliation variance accepted.
	Tolerance float64 `yaml:"reconciliation_tolerance" mapstructure:"reconciliation_tolerance"`
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{AlignmentUnits: 8, Tolerance: 0.05}
}

// Calculator computes fee schedules. It holds no per-request state and is
// safe for concurrent use.
type Calculator struct {
	align     int
	tolerance decimal.Decimal
}

// NewCalculator creates a Calculator. Zero-valued options take defaults.
func NewCalculator(opts Options) *Calculator {
	def := DefaultOptions()
	if opts.AlignmentUnits <= 0 {
		opts.AlignmentUnits = def.AlignmentUnits
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = def.Tolerance
	}
	return &Calculator{
		align:     opts.AlignmentUnits,
		tolerance: decimal.NewFromFloat(opts.Tolerance),
	}
}

// forwardCalc is the output of the gross-to-transfer algorithm.
type forwardCalc struct {
	gross     decimal.Decimal
	upfront   Component
	base      decimal.Decimal
	amc13     Component
	amc45     Component
	totalFees decimal.Decimal
	transfer  decimal.Decimal
	steps     []Step
}

// Calculate computes every fee component of an investment.
//
// For Gross, amount is the capital to deploy and fees are added on top. For
// Net, amount is the total the investor transfers; the gross is derived by
// the closed-form inverse of the forward algorithm, aligned to the penny,
// and the forward algorithm is re-run on it so every component ties out.
// The supplied investor type overrides any type carried by s. The amount is
// first rounded to the penny under s.Rounding.
func (c *Calculator) Calculate(amount decimal.Decimal, dir Direction, typ InvestorType, s Structure) (*Result, error) {
	if !amount.IsPositive() {
		return nil, calcErr("amount", "must be positive, got %s", amount)
	}
	strat, err := StrategyFor(typ)
	if err != nil {
		return nil, err
	}
	s.InvestorType = typ
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if amount = s.Rounding.Apply(amount); !amount.IsPositive() {
		return nil, calcErr("amount", "rounds to %s under %s rounding", amount, s.Rounding)
	}

	var (
		fc    forwardCalc
		steps []Step
		rec   = Reconciliation{Direction: dir, Tolerance: c.tolerance}
	)

	switch dir {
	case Gross:
		fc, err = forward(amount, strat, s)
		if err != nil {
			return nil, err
		}
		steps = fc.steps

		back, _, err := c.solve(fc.transfer, strat, s)
		if err != nil {
			return nil, eris.Wrap(err, "fee: reconcile gross calculation")
		}
		rec.Expected = amount
		rec.Recomputed = back.gross
		rec.Variance = back.gross.Sub(amount)

	case Net:
		var inv []Step
		fc, inv, err = c.solve(amount, strat, s)
		if err != nil {
			return nil, err
		}
		steps = append(inv, fc.steps...)

		rec.Expected = amount
		rec.Recomputed = fc.transfer
		rec.Variance = fc.transfer.Sub(amount)

	default:
		return nil, calcErr("direction", "unknown direction %q", dir)
	}

	rec.Balanced = rec.Variance.Abs().LessThanOrEqual(c.tolerance)
	if !rec.Balanced {
		return nil, calcErr("reconciliation", "variance %s exceeds tolerance %s", rec.Variance, c.tolerance)
	}

	transfer := fc.transfer
	if dir == Net {
		transfer = amount
	}

	hash, err := Hash(amount, dir, typ, s)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Direction:       dir,
		InvestorType:    typ,
		Method:          string(dir) + "_" + string(typ),
		GrossInvestment: fc.gross,
		NetInvestment:   fc.gross,
		Upfront:         fc.upfront,
		AMCBase:         fc.base,
		AMC13:           fc.amc13,
		AMC45:           fc.amc45,
		PerformanceFee:  decimal.Zero,
		TotalFees:       fc.totalFees,
		TotalTransfer:   transfer,
		AccruedFees:     fc.amc45.Total,
		Structure:       s,
		Steps:           steps,
		Reconciliation:  rec,
		Hash:            hash,
	}

	zap.L().Debug("fee: calculated",
		zap.String("method", res.Method),
		zap.String("gross", res.GrossInvestment.String()),
		zap.String("transfer", res.TotalTransfer.String()),
		zap.String("variance", rec.Variance.String()),
		zap.String("hash", hash),
	)
	return res, nil
}

// forward runs the gross-to-transfer algorithm, rounding every step.
func forward(amount decimal.Decimal, strat Strategy, s Structure) (forwardCalc, error) {
	tr := &trail{round: s.Rounding}
	fc := forwardCalc{gross: amount}

	tr.note("gross_investment", amount)

	fc.upfront.ExVAT = tr.do("upfront_ex_vat", amount.Mul(s.UpfrontPct),
		op("amount", amount), op("upfront_pct", s.UpfrontPct))
	fc.upfront.VAT = tr.do("upfront_vat", fc.upfront.ExVAT.Mul(s.VATPct),
		op("upfront_ex_vat", fc.upfront.ExVAT), op("vat_pct", s.VATPct))
	fc.upfront.Total = tr.do("upfront_total", fc.upfront.ExVAT.Add(fc.upfront.VAT),
		op("upfront_ex_vat", fc.upfront.ExVAT), op("upfront_vat", fc.upfront.VAT))

	fc.base = tr.do("amc_base", strat.AMCBase(amount, fc.upfront.Total),
		op("amount", amount), op("upfront_total", fc.upfront.Total))
	if !fc.base.IsPositive() {
		return forwardCalc{}, calcErr("upfront_pct", "upfront fee %s leaves no AMC base on %s", fc.upfront.Total, amount)
	}

	rate13 := s.AMCRate13()
	fc.amc13.ExVAT = tr.do("amc_1_3_ex_vat", fc.base.Mul(rate13),
		op("amc_base", fc.base), op("amc_1_3_rate", rate13))
	fc.amc13.VAT = tr.do("amc_1_3_vat", fc.amc13.ExVAT.Mul(s.VATPct),
		op("amc_1_3_ex_vat", fc.amc13.ExVAT), op("vat_pct", s.VATPct))
	fc.amc13.Total = tr.do("amc_1_3_total", fc.amc13.ExVAT.Add(fc.amc13.VAT),
		op("amc_1_3_ex_vat", fc.amc13.ExVAT), op("amc_1_3_vat", fc.amc13.VAT))

	rate45 := s.AMCRate45()
	fc.amc45.ExVAT = tr.do("amc_4_5_ex_vat", fc.base.Mul(rate45),
		op("amc_base", fc.base), op("amc_4_5_rate", rate45))
	fc.amc45.VAT = tr.do("amc_4_5_vat", fc.amc45.ExVAT.Mul(s.VATPct),
		op("amc_4_5_ex_vat", fc.amc45.ExVAT), op("vat_pct", s.VATPct))
	fc.amc45.Total = tr.do("amc_4_5_total", fc.amc45.ExVAT.Add(fc.amc45.VAT),
		op("amc_4_5_ex_vat", fc.amc45.ExVAT), op("amc_4_5_vat", fc.amc45.VAT))

	fc.totalFees = tr.do("total_fees", fc.upfront.Total.Add(fc.amc13.Total),
		op("upfront_total", fc.upfront.Total), op("amc_1_3_total", fc.amc13.Total))
	fc.transfer = tr.do("total_transfer", amount.Add(fc.totalFees),
		op("amount", amount), op("total_fees", fc.totalFees))

	tr.note("performance_fee", decimal.Zero, op("performance_pct", s.PerformancePct))

	fc.steps = tr.steps
	return fc, nil
}

// solve derives the gross whose forward transfer is closest to net. The
// closed form gross = net/m is rounded, then its neighbours within the
// alignment window are evaluated nearest first; the first candidate with
// the smallest transfer difference wins.
func (c *Calculator) solve(net decimal.Decimal, strat Strategy, s Structure) (forwardCalc, []Step, error) {
	one := decimal.NewFromInt(1)
	u := s.UpfrontPct
	a := s.AMCRate13()
	t := one.Add(s.VATPct)

	m := strat.Multiplier(u, a, t)
	if !m.IsPositive() {
		return forwardCalc{}, nil, calcErr("multiplier", "fee multiplier %s is not positive", m)
	}

	tr := &trail{round: s.Rounding}
	tr.note("net_supplied", net)
	tr.note("multiplier", m, op("upfront_pct", u), op("amc_1_3_rate", a), op("vat_multiplier", t))
	closed := tr.do("gross_closed_form", net.DivRound(m, 16), op("net", net), op("multiplier", m))

	var (
		best    forwardCalc
		bestGap decimal.Decimal
		found   bool
		lastErr error
	)
	for k := 0; k <= c.align && !(found && bestGap.IsZero()); k++ {
		for _, sign := range []int64{-1, 1} {
			if k == 0 && sign > 0 {
				continue
			}
			g := closed.Add(unit.Mul(decimal.NewFromInt(sign * int64(k))))
			if !g.IsPositive() {
				continue
			}
			fc, err := forward(g, strat, s)
			if err != nil {
				lastErr = err
				continue
			}
			gap := fc.transfer.Sub(net).Abs()
			if !found || gap.LessThan(bestGap) {
				best, bestGap, found = fc, gap, true
			}
			if bestGap.IsZero() {
				break
			}
		}
	}
	if !found {
		if lastErr != nil {
			return forwardCalc{}, nil, lastErr
		}
		return forwardCalc{}, nil, calcErr("amount", "no positive gross produces transfer %s", net)
	}

	tr.note("gross_aligned", best.gross, op("gross_closed_form", closed), op("transfer_gap", bestGap))
	return best, tr.steps, nil
}
