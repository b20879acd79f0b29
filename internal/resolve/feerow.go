package resolve

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/model"
)

// ResolveFeeRow picks the fee row that governs an investor's rates.
//
// Rows are selected by exact client reference. When none carry the
// reference, the investor's full name is matched against the fee sheet's
// investor names, by compressed equality or by whole-token containment in
// any word order. Similarity scoring is never used here: a near miss is
// logged and reported as not found so the caller falls back to explicitly
// flagged default rates.
//
// A subscription hint narrows the candidates to that code unless it would
// leave nothing. Of what remains, the newest row by effective date and then
// deposit number wins.
func (r *Resolver) ResolveFeeRow(rows []model.FeeRow, investorRef, subscriptionHint, investorFullName string) Outcome[model.FeeRow] {
	log := zap.L().With(zap.String("component", "resolver"), zap.String("entity", "fee_row"))
	t := FeeRowTable(rows)

	var (
		matches []int
		tier    Tier
		score   = 1.0
	)

	if ref := strings.TrimSpace(investorRef); ref != "" {
		for i, row := range rows {
			if strings.EqualFold(strings.TrimSpace(row.ClientRef), ref) {
				matches = append(matches, i)
			}
		}
		tier = TierExactKey
	}

	if len(matches) == 0 {
		var out *Outcome[model.FeeRow]
		matches, tier, score, out = r.feeRowsByName(log, t, investorFullName)
		if out != nil {
			return *out
		}
		if len(matches) == 0 {
			return notFound[model.FeeRow](tier)
		}
	}

	if hint := strings.TrimSpace(subscriptionHint); hint != "" {
		var narrowed []int
		for _, i := range matches {
			if strings.EqualFold(strings.TrimSpace(rows[i].SubscriptionCode), hint) {
				narrowed = append(narrowed, i)
			}
		}
		if len(narrowed) > 0 {
			matches = narrowed
		} else {
			log.Debug("resolve: subscription hint matched no rows, ignoring",
				zap.String("hint", hint),
				zap.Int("rows", len(matches)),
			)
		}
	}

	best := matches[0]
	for _, i := range matches[1:] {
		if feeRowLess(rows[i], rows[best]) {
			best = i
		}
	}

	log.Debug("resolve: fee row selected",
		zap.Stringer("tier", tier),
		zap.String("client_ref", rows[best].ClientRef),
		zap.String("subscription", rows[best].SubscriptionCode),
		zap.Int("considered", len(matches)),
	)
	return unique(rows[best], tier, score)
}

// feeRowsByName returns the indices of rows whose investor name matches
// fullName. A non-nil outcome short-circuits the lookup (ambiguous).
func (r *Resolver) feeRowsByName(log *zap.Logger, t Table[model.FeeRow], fullName string) ([]int, Tier, float64, *Outcome[model.FeeRow]) {
	nf := Normalize(fullName)
	qTokens := Tokens(fullName)
	if nf.Compressed == "" {
		return nil, TierNone, 0, nil
	}

	type nameForm struct {
		nf     NormalForm
		tokens []string
	}
	forms := make([]nameForm, len(t.Rows))
	for i, row := range t.Rows {
		forms[i] = nameForm{nf: Normalize(row.InvestorName), tokens: Tokens(row.InvestorName)}
	}

	// Tier 2: compressed equality, or the same words in another order.
	var hits []int
	for i, f := range forms {
		if f.nf.Compressed == "" {
			continue
		}
		if f.nf.Compressed == nf.Compressed || sameTokens(f.tokens, qTokens) {
			hits = append(hits, i)
		}
	}
	tier := TierCompressedExact

	// Tier 3: every word of the shorter name appears in the longer one.
	if len(hits) == 0 {
		for i, f := range forms {
			if tokensContained(f.tokens, qTokens) {
				hits = append(hits, i)
			}
		}
		tier = TierContainment
	}

	if len(hits) == 0 {
		var (
			bestScore float64
			bestName  string
		)
		for _, f := range forms {
			if s := Similarity(nf.Normalized, f.nf.Normalized); s > bestScore {
				bestScore, bestName = s, f.nf.Normalized
			}
		}
		if bestScore >= r.cfg.SimilarityThreshold {
			log.Warn("resolve: fee row near miss ignored",
				zap.String("query", fullName),
				zap.String("closest", bestName),
				zap.Float64("score", bestScore),
			)
		}
		return nil, TierContainment, 0, nil
	}

	// Several rows for one investor are expected; rows for different
	// investors are not.
	investors := map[string][]int{}
	var order []string
	for _, i := range hits {
		id := investorIdentity(t.Rows[i], forms[i].tokens)
		if _, ok := investors[id]; !ok {
			order = append(order, id)
		}
		investors[id] = append(investors[id], i)
	}
	if len(order) > 1 {
		scored := make([]scoredRow, 0, len(order))
		for _, id := range order {
			idx := investors[id][0]
			for _, j := range investors[id][1:] {
				if feeRowLess(t.Rows[j], t.Rows[idx]) {
					idx = j
				}
			}
			scored = append(scored, scoredRow{idx: idx, score: Similarity(nf.Normalized, forms[idx].nf.Normalized)})
		}
		sortScored(scored)
		log.Info("resolve: fee row name matches several investors",
			zap.String("query", fullName),
			zap.Stringer("tier", tier),
			zap.Int("investors", len(order)),
		)
		out := ambiguous[model.FeeRow](tier, candidates(t, scored), r.cfg.PreviewLimit)
		return nil, tier, 0, &out
	}

	return hits, tier, Similarity(nf.Normalized, forms[hits[0]].nf.Normalized), nil
}

// investorIdentity keys a fee row to the investor it belongs to: the client
// reference when present, else the sorted name tokens.
func investorIdentity(f model.FeeRow, tokens []string) string {
	if ref := strings.TrimSpace(f.ClientRef); ref != "" {
		return "ref:" + strings.ToLower(ref)
	}
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return "name:" + strings.Join(sorted, " ")
}

func sameTokens(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	return tokensContained(a, b)
}

// tokensContained reports whether the smaller token list is a sub-multiset
// of the larger. Single-word names never match by containment.
func tokensContained(a, b []string) bool {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	if len(small) < 2 && len(small) != len(large) {
		return false
	}
	if len(small) == 0 {
		return false
	}
	counts := make(map[string]int, len(large))
	for _, tok := range large {
		counts[tok]++
	}
	for _, tok := range small {
		if counts[tok] == 0 {
			return false
		}
		counts[tok]--
	}
	return true
}
