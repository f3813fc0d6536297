// Package vecmath provides the small amount of vector arithmetic the
// retrieval core needs: cosine similarity and L2 normalization.
// All functions are pure and allocation-free.
package vecmath

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
// It fails softly: a length mismatch or a zero-magnitude input yields 0.0
// rather than an error, because "no measurable similarity" is the correct
// retrieval outcome for degenerate vectors.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Norm returns the L2 magnitude of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v in place to unit length. A zero vector is left
// unchanged — there is no meaningful direction to preserve.
func Normalize(v []float32) {
	norm := Norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// Clip01 clamps s into [0, 1]. Negative cosine similarity carries no
// meaning for this domain, so retrieval scores are clipped at zero.
func Clip01(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
