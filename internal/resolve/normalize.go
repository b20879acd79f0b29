package resolve

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists the legal entity suffixes stripped during normalization.
// Sorted longest first at init so " company" wins over " co".
var legalSuffixes = []string{
	" limited",
	" ltd", " ltd.",
	" plc",
	" llp",
	" inc", " inc.",
	" corp", " corp.",
	" co", " co.",
	" company",
}

func init() {
	sort.SliceStable(legalSuffixes, func(i, j int) bool {
		return len(legalSuffixes[i]) > len(legalSuffixes[j])
	})
}

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]`)
)

// NormalForm holds the two comparison forms of a name.
type NormalForm struct {
	// Normalized is lower-cased, trimmed, whitespace-collapsed and stripped
	// of one legal suffix.
	Normalized string
	// Compressed is Normalized with every non-alphanumeric rune removed, so
	// "O'Neil & Co" and "oneil and" differ only by the "and".
	Compressed string
}

// Normalize returns both comparison forms of s.
func Normalize(s string) NormalForm {
	n := NormalizeName(s)
	return NormalForm{Normalized: n, Compressed: Compress(n)}
}

// NormalizeName standardizes a name for matching by:
//  1. Folding accents ("José" -> "jose")
//  2. Lower-casing and trimming
//  3. Collapsing internal whitespace
//  4. Removing a single legal suffix (longest first)
func NormalizeName(s string) string {
	s = foldAccents(s)
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}

	return strings.TrimSpace(s)
}

// Compress lower-cases s and removes every character that is not a letter
// or digit. It does not strip legal suffixes; pass a normalized name for that.
func Compress(s string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToLower(foldAccents(s)), "")
}

// Tokens splits a normalized name into compressed word tokens.
func Tokens(s string) []string {
	fields := strings.Fields(NormalizeName(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if c := Compress(f); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
