package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "alan fox", "alan fox", 1.0},
		{"both empty", "", "", 0},
		{"one empty", "alan", "", 0},
		{"kitten", "kitten", "sitting", 1 - 3.0/7.0},
		{"disjoint", "abc", "xyz", 0},
		{"one edit", "alan fo", "alan fox", 1 - 1.0/8.0},
		{"multibyte", "zoë", "zoe", 1 - 1.0/3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"jonathan smith", "jonathon smyth"},
		{"acme", "acme holdings"},
		{"alan hickford", "alan fox"},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]))
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}
