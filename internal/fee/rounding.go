package fee

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingRule is applied after every arithmetic step of a calculation.
type RoundingRule string

const (
	// RoundNearest rounds half to even at two decimal places.
	RoundNearest RoundingRule = "nearest"
	RoundUp      RoundingRule = "up"
	RoundDown    RoundingRule = "down"
)

// places is the currency precision every step rounds to.
const places = 2

// unit is one rounding unit (a penny).
var unit = decimal.New(1, -places)

// ParseRoundingRule accepts the rule names plus the "banker"/"bankers"
// aliases for nearest.
func ParseRoundingRule(s string) (RoundingRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nearest", "banker", "bankers", "half_even":
		return RoundNearest, nil
	case "up", "ceil":
		return RoundUp, nil
	case "down", "floor":
		return RoundDown, nil
	}
	return "", calcErr("rounding", "unknown rounding rule %q", s)
}

// Valid reports whether r is one of the defined rules.
func (r RoundingRule) Valid() bool {
	switch r {
	case RoundNearest, RoundUp, RoundDown:
		return true
	}
	return false
}

// Apply rounds d to two decimal places.
func (r RoundingRule) Apply(d decimal.Decimal) decimal.Decimal {
	switch r {
	case RoundUp:
		return d.RoundCeil(places)
	case RoundDown:
		return d.RoundFloor(places)
	default:
		return d.RoundBank(places)
	}
}
