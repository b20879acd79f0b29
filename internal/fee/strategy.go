package fee

import "github.com/shopspring/decimal"

// Strategy is one formula family of the engine. Retail and professional
// investors differ only in the base the AMC is charged on, which changes
// the closed-form inverse.
type Strategy interface {
	Type() InvestorType
	// AMCBase returns the amount the AMC is levied on, unrounded.
	AMCBase(amount, upfrontTotal decimal.Decimal) decimal.Decimal
	// Multiplier returns m such that transfer = gross * m, before rounding.
	// u is the upfront rate, a the three-year AMC rate and t is 1+VAT.
	Multiplier(u, a, t decimal.Decimal) decimal.Decimal
}

type retailStrategy struct{}

func (retailStrategy) Type() InvestorType { return Retail }

// AMCBase deducts the upfront charge before the AMC is computed.
func (retailStrategy) AMCBase(amount, upfrontTotal decimal.Decimal) decimal.Decimal {
	return amount.Sub(upfrontTotal)
}

// Multiplier is 1 + ut + at - u*a*t^2; the cross term comes from charging
// the AMC on gross less the VAT-inclusive upfront fee.
func (retailStrategy) Multiplier(u, a, t decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return one.
		Add(u.Mul(t)).
		Add(a.Mul(t)).
		Sub(u.Mul(a).Mul(t).Mul(t))
}

type professionalStrategy struct{}

func (professionalStrategy) Type() InvestorType { return Professional }

func (professionalStrategy) AMCBase(amount, _ decimal.Decimal) decimal.Decimal {
	return amount
}

// Multiplier is 1 + t(u + a).
func (professionalStrategy) Multiplier(u, a, t decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(t.Mul(u.Add(a)))
}

// StrategyFor returns the strategy for an investor type.
func StrategyFor(t InvestorType) (Strategy, error) {
	switch t {
	case Retail:
		return retailStrategy{}, nil
	case Professional:
		return professionalStrategy{}, nil
	}
	return nil, calcErr("investor_type", "unknown investor type %q", t)
}
