package resolve

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity scores two normalized strings in [0,1] as an edit-distance
// ratio: 1 - distance/max(len). Identical strings score exactly 1 without
// running the metric; an empty side scores 0.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}

	d := levenshtein.ComputeDistance(a, b)
	if d >= longest {
		return 0
	}
	return 1 - float64(d)/float64(longest)
}
