package resolve

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Config tunes the matching tiers.
type Config struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	// AmbiguityBand is how close a rival's score must be to the best one for
	// a similarity match to be ambiguous. Nil takes the default; zero only
	// treats exact ties as ambiguous.
	AmbiguityBand *float64 `yaml:"ambiguity_band" mapstructure:"ambiguity_band"`
	PreviewLimit  int      `yaml:"preview_limit" mapstructure:"preview_limit"`
	KeyPattern    string   `yaml:"key_pattern" mapstructure:"key_pattern"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	band := 0.05
	return Config{
		SimilarityThreshold: 0.75,
		AmbiguityBand:       &band,
		PreviewLimit:        5,
		KeyPattern:          `(?i)^[a-z]{0,4}-?[0-9]{4,}[a-z0-9-]*$`,
	}
}

// Table describes how to match a collection of reference records.
type Table[T any] struct {
	Entity string
	Rows   []T
	// Keys returns the fields compared by exact, case-insensitive equality.
	Keys func(T) []string
	// Names returns the fields compared by the name tiers.
	Names func(T) []string
	// Label and Detail describe a record in an ambiguous candidate list.
	Label  func(T) string
	Detail func(T) string
	// Less orders exact-key hits when a key expected to be unique repeats.
	Less func(a, b T) bool
}

// Resolver maps free-text queries to reference records without guessing.
type Resolver struct {
	cfg   Config
	band  float64
	keyRe *regexp.Regexp
}

// New creates a Resolver. Zero-valued settings take their defaults.
func New(cfg Config) (*Resolver, error) {
	def := DefaultConfig()
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.SimilarityThreshold > 1 {
		return nil, eris.Errorf("resolve: similarity threshold %.2f out of range", cfg.SimilarityThreshold)
	}
	band := *def.AmbiguityBand
	if cfg.AmbiguityBand != nil {
		band = *cfg.AmbiguityBand
	}
	if band < 0 {
		return nil, eris.Errorf("resolve: negative ambiguity band %.2f", band)
	}
	cfg.AmbiguityBand = &band
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = def.PreviewLimit
	}
	if cfg.KeyPattern == "" {
		cfg.KeyPattern = def.KeyPattern
	}
	re, err := regexp.Compile(cfg.KeyPattern)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: compile key pattern")
	}
	return &Resolver{cfg: cfg, band: band, keyRe: re}, nil
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config { return r.cfg }

// LooksLikeKey reports whether a query is shaped like an email or a
// reference code rather than a name.
func (r *Resolver) LooksLikeKey(query string) bool {
	q := strings.TrimSpace(query)
	return strings.Contains(q, "@") || r.keyRe.MatchString(q)
}

type scoredRow struct {
	idx   int
	score float64
}

// Resolve runs the tiered match of query against t. Tiers short-circuit:
// the first one producing a match decides the outcome.
//  1. Exact key (email, client reference, company number)
//  2. Compressed exact name
//  3. Compressed containment, either direction
//  4. Similarity at or above the threshold
//
// Any tier past the first that yields more than one record, or a similarity
// winner with a rival inside the ambiguity band, returns KindAmbiguous.
func Resolve[T any](r *Resolver, query string, t Table[T]) Outcome[T] {
	log := zap.L().With(zap.String("component", "resolver"), zap.String("entity", t.Entity))

	q := strings.TrimSpace(query)
	if q == "" || len(t.Rows) == 0 {
		return notFound[T](TierNone)
	}

	if t.Keys != nil {
		if out, ok := exactKey(q, t); ok {
			log.Debug("resolve: exact key match", zap.String("query", q))
			return out
		}
		if r.LooksLikeKey(q) {
			log.Debug("resolve: key-shaped query not found", zap.String("query", q))
			return notFound[T](TierExactKey)
		}
	}

	nf := Normalize(q)
	if nf.Compressed == "" || t.Names == nil {
		return notFound[T](TierNone)
	}

	forms := make([][]NormalForm, len(t.Rows))
	for i, row := range t.Rows {
		for _, n := range t.Names(row) {
			if f := Normalize(n); f.Compressed != "" {
				forms[i] = append(forms[i], f)
			}
		}
	}

	// Tier 2: compressed exact.
	var hits []int
	for i, fs := range forms {
		for _, f := range fs {
			if f.Compressed == nf.Compressed {
				hits = append(hits, i)
				break
			}
		}
	}
	if len(hits) > 0 {
		return decide(r, log, q, t, nf, forms, hits, TierCompressedExact)
	}

	// Tier 3: compressed containment.
	hits = hits[:0]
	for i, fs := range forms {
		for _, f := range fs {
			if strings.Contains(f.Compressed, nf.Compressed) || strings.Contains(nf.Compressed, f.Compressed) {
				hits = append(hits, i)
				break
			}
		}
	}
	if len(hits) > 0 {
		return decide(r, log, q, t, nf, forms, hits, TierContainment)
	}

	// Tier 4: similarity.
	scored := scoreRows(nf, forms)
	var above []scoredRow
	for _, s := range scored {
		if s.score >= r.cfg.SimilarityThreshold {
			above = append(above, s)
		}
	}
	if len(above) == 0 {
		if len(scored) > 0 {
			log.Debug("resolve: no match above threshold",
				zap.String("query", q),
				zap.Float64("best_score", scored[0].score),
				zap.Float64("threshold", r.cfg.SimilarityThreshold),
			)
		}
		return notFound[T](TierSimilarity)
	}

	best := above[0]
	var rivals []scoredRow
	for _, s := range scored[1:] {
		if s.score >= r.cfg.SimilarityThreshold || best.score-s.score <= r.band {
			rivals = append(rivals, s)
		}
	}
	if len(rivals) > 0 {
		all := append([]scoredRow{best}, rivals...)
		log.Info("resolve: ambiguous similarity match",
			zap.String("query", q),
			zap.Int("candidates", len(all)),
		)
		return ambiguous[T](TierSimilarity, candidates(t, all), r.cfg.PreviewLimit)
	}

	log.Debug("resolve: similarity match",
		zap.String("query", q),
		zap.Float64("score", best.score),
	)
	return unique(t.Rows[best.idx], TierSimilarity, best.score)
}

// decide turns the hits of a name tier into an outcome: one hit is unique,
// several are ambiguous.
func decide[T any](r *Resolver, log *zap.Logger, q string, t Table[T], nf NormalForm, forms [][]NormalForm, hits []int, tier Tier) Outcome[T] {
	if len(hits) == 1 {
		log.Debug("resolve: name match",
			zap.String("query", q),
			zap.Stringer("tier", tier),
		)
		return unique(t.Rows[hits[0]], tier, bestScore(nf, forms[hits[0]]))
	}

	scored := make([]scoredRow, 0, len(hits))
	for _, i := range hits {
		scored = append(scored, scoredRow{idx: i, score: bestScore(nf, forms[i])})
	}
	sortScored(scored)

	log.Info("resolve: ambiguous name match",
		zap.String("query", q),
		zap.Stringer("tier", tier),
		zap.Int("candidates", len(scored)),
	)
	return ambiguous[T](tier, candidates(t, scored), r.cfg.PreviewLimit)
}

// exactKey matches q against every key field. Repeated hits on a key that
// should be unique are ordered by t.Less, never by row position.
func exactKey[T any](q string, t Table[T]) (Outcome[T], bool) {
	best := -1
	for i, row := range t.Rows {
		for _, k := range t.Keys(row) {
			k = strings.TrimSpace(k)
			if k == "" || !strings.EqualFold(k, q) {
				continue
			}
			if best < 0 || (t.Less != nil && t.Less(row, t.Rows[best])) {
				best = i
			}
			break
		}
	}
	if best < 0 {
		return Outcome[T]{}, false
	}
	return unique(t.Rows[best], TierExactKey, 1.0), true
}

func bestScore(nf NormalForm, forms []NormalForm) float64 {
	var best float64
	for _, f := range forms {
		if s := Similarity(nf.Normalized, f.Normalized); s > best {
			best = s
		}
	}
	return best
}

func scoreRows(nf NormalForm, forms [][]NormalForm) []scoredRow {
	scored := make([]scoredRow, 0, len(forms))
	for i, fs := range forms {
		if len(fs) == 0 {
			continue
		}
		scored = append(scored, scoredRow{idx: i, score: bestScore(nf, fs)})
	}
	sortScored(scored)
	return scored
}

// sortScored orders by score descending, then by row index so equal scores
// keep a stable order regardless of map or goroutine scheduling.
func sortScored(s []scoredRow) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].score != s[j].score {
			return s[i].score > s[j].score
		}
		return s[i].idx < s[j].idx
	})
}

func candidates[T any](t Table[T], scored []scoredRow) []Candidate {
	out := make([]Candidate, 0, len(scored))
	for _, s := range scored {
		row := t.Rows[s.idx]
		c := Candidate{Score: s.score}
		if t.Label != nil {
			c.Label = t.Label(row)
		}
		if t.Detail != nil {
			c.Detail = t.Detail(row)
		}
		out = append(out, c)
	}
	return out
}
