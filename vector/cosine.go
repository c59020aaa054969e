package vector

import "gonum.org/v1/gonum/floats"

// epsilon keeps the denominator non-zero for all-zero vectors.
const epsilon = 1e-8

// CosineSimilarity returns dot(a,b) / (|a|*|b| + epsilon).
// Vectors of different length (or empty ones) score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return floats.Dot(a, b) / (floats.Norm(a, 2)*floats.Norm(b, 2) + epsilon)
}
