package resolve

import "github.com/rotisserie/eris"

// Kind tags the three possible resolution outcomes.
type Kind int

const (
	KindNotFound Kind = iota
	KindUnique
	KindAmbiguous
)

var kindNames = map[Kind]string{
	KindNotFound:  "not_found",
	KindUnique:    "unique",
	KindAmbiguous: "ambiguous",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, eris.Errorf("resolve: unknown kind %d", int(k))
	}
	return []byte(s), nil
}

// Tier identifies which matching pass produced an outcome.
type Tier int

const (
	TierNone Tier = iota
	TierExactKey
	TierCompressedExact
	TierContainment
	TierSimilarity
)

var tierNames = map[Tier]string{
	TierNone:            "none",
	TierExactKey:        "exact_key",
	TierCompressedExact: "compressed_exact",
	TierContainment:     "containment",
	TierSimilarity:      "similarity",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Candidate summarizes one plausible record of an ambiguous outcome.
type Candidate struct {
	Label  string  `json:"label"`
	Detail string  `json:"detail,omitempty"`
	Score  float64 `json:"score"`
}

// Outcome is the result of resolving a query against a table. Exactly one
// of the three kinds applies; Record is only meaningful for KindUnique and
// Candidates only for KindAmbiguous.
type Outcome[T any] struct {
	Kind       Kind        `json:"kind"`
	Tier       Tier        `json:"tier"`
	Record     T           `json:"record,omitempty"`
	Score      float64     `json:"score,omitempty"`
	Candidates []Candidate `json:"candidates,omitempty"`
	// Total counts every ambiguous candidate, including those cut from the
	// Candidates preview.
	Total int `json:"total,omitempty"`
}

// Unique returns the matched record and true when the outcome is unique.
func (o Outcome[T]) Unique() (T, bool) {
	if o.Kind != KindUnique {
		var zero T
		return zero, false
	}
	return o.Record, true
}

// IsNotFound reports whether nothing matched.
func (o Outcome[T]) IsNotFound() bool { return o.Kind == KindNotFound }

// IsAmbiguous reports whether several records matched equally plausibly.
func (o Outcome[T]) IsAmbiguous() bool { return o.Kind == KindAmbiguous }

func notFound[T any](tier Tier) Outcome[T] {
	return Outcome[T]{Kind: KindNotFound, Tier: tier}
}

func unique[T any](rec T, tier Tier, score float64) Outcome[T] {
	return Outcome[T]{Kind: KindUnique, Tier: tier, Record: rec, Score: score}
}

func ambiguous[T any](tier Tier, candidates []Candidate, limit int) Outcome[T] {
	total := len(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return Outcome[T]{Kind: KindAmbiguous, Tier: tier, Candidates: candidates, Total: total}
}
