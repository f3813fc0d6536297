package embed

import (
	"context"
	"strings"

	"github.com/sistc/ragcore/internal/vecmath"
)

// defaultHashDimensions is the vector size used when a HashEmbedder is
// constructed with a non-positive dimension.
const defaultHashDimensions = 256

// HashEmbedder is the deterministic, dependency-free embedding fallback.
// Each word contributes to up to three hash buckets — a forward character
// hash, a reverse character hash, and one per overlapping character bigram —
// with position-decayed weights, and the result is L2-normalized.
//
// This scheme is not semantically trained. It only guarantees that texts
// sharing many words land closer together than unrelated texts, which is
// enough for approximate retrieval when no external embedding model is
// reachable. It must never be treated as a high-quality embedding.
type HashEmbedder struct {
	// dims is the output vector length.
	dims int
}

// NewHashEmbedder constructs a HashEmbedder producing vectors of the given
// dimensionality. Non-positive dims falls back to defaultHashDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the output vector length.
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Embed converts text into a deterministic unit-length vector. For fixed
// input and dimensionality the output is byte-identical across calls.
// Returns ErrEmptyInput for blank or whitespace-only text.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	vec := make([]float32, h.dims)
	words := strings.Fields(strings.ToLower(text))

	for i, word := range words {
		// Position decay: earlier words carry more weight.
		decay := 1.0 / float64(i+1)

		fwd := int(rollingHash(word) % uint64(h.dims))
		vec[fwd] += float32(decay)

		rev := int(rollingHash(reverse(word)) % uint64(h.dims))
		if rev != fwd {
			vec[rev] += float32(0.5 * decay)
		}

		for j := 0; j+2 <= len(word); j++ {
			bg := int(rollingHash(word[j:j+2]) % uint64(h.dims))
			if bg != fwd && bg != rev {
				vec[bg] += float32(0.3 * decay)
			}
		}
	}

	// A degenerate input (every bucket cancelled out) stays the zero
	// vector; Normalize leaves it untouched.
	vecmath.Normalize(vec)
	return vec, nil
}

// rollingHash is a 31-multiplier polynomial hash over the bytes of s.
func rollingHash(s string) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = h*31 + uint64(s[i])
	}
	return h
}

// reverse returns s with its bytes in reverse order. The hash scheme
// operates on bytes, so multi-byte runes hash consistently either way.
func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
