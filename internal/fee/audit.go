package fee

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// Operand is a named input of an audit step.
type Operand struct {
	Name  string          `json:"name" yaml:"name"`
	Value decimal.Decimal `json:"value" yaml:"value"`
}

// Step records one rounded arithmetic step of a calculation.
type Step struct {
	Op     string          `json:"op" yaml:"op"`
	Inputs []Operand       `json:"inputs" yaml:"inputs"`
	Output decimal.Decimal `json:"output" yaml:"output"`
}

// Reconciliation recomputes the opposite direction of a calculation.
// For a gross calculation Expected is the gross amount and Recomputed the
// gross recovered from the total transfer; for a net calculation Expected
// is the supplied transfer and Recomputed the forward transfer of the
// derived gross.
type Reconciliation struct {
	Direction  Direction       `json:"direction" yaml:"direction"`
	Expected   decimal.Decimal `json:"expected" yaml:"expected"`
	Recomputed decimal.Decimal `json:"recomputed" yaml:"recomputed"`
	Variance   decimal.Decimal `json:"variance" yaml:"variance"`
	Tolerance  decimal.Decimal `json:"tolerance" yaml:"tolerance"`
	Balanced   bool            `json:"balanced" yaml:"balanced"`
}

type trail struct {
	steps []Step
	round RoundingRule
}

// do rounds v, records it as op and returns the rounded value.
func (t *trail) do(op string, v decimal.Decimal, inputs ...Operand) decimal.Decimal {
	out := t.round.Apply(v)
	t.steps = append(t.steps, Step{Op: op, Inputs: inputs, Output: out})
	return out
}

// note records a value that is carried without arithmetic.
func (t *trail) note(op string, v decimal.Decimal, inputs ...Operand) {
	t.steps = append(t.steps, Step{Op: op, Inputs: inputs, Output: v})
}

func op(name string, v decimal.Decimal) Operand { return Operand{Name: name, Value: v} }

type hashInput struct {
	Amount       string            `json:"amount"`
	Direction    Direction         `json:"direction"`
	InvestorType InvestorType      `json:"investor_type"`
	Structure    map[string]string `json:"structure"`
}

// Hash returns a stable digest of the calculation inputs: the first 16 hex
// characters of SHA-256 over their RFC 8785 canonical JSON. Equal decimals
// hash equally regardless of trailing zeros.
func Hash(amount decimal.Decimal, dir Direction, typ InvestorType, s Structure) (string, error) {
	in := hashInput{
		Amount:       amount.StringFixed(places),
		Direction:    dir,
		InvestorType: typ,
		Structure: map[string]string{
			"upfront_pct":     s.UpfrontPct.String(),
			"amc_1_3_pct":     s.AMC13Pct.String(),
			"amc_4_5_pct":     s.AMC45Pct.String(),
			"performance_pct": s.PerformancePct.String(),
			"vat_pct":         s.VATPct.String(),
			"rounding":        string(s.Rounding),
		},
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return "", eris.Wrap(err, "fee: marshal hash input")
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", eris.Wrap(err, "fee: canonicalize hash input")
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:16], nil
}
