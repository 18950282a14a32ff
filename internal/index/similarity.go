package index

import "math"

// CosineSimilarity returns dot(a,b) / (||a||*||b||), clamped to [-1, 1].
// A zero-norm operand yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	denom := vectorNorm(a) * vectorNorm(b)
	if denom == 0 {
		return 0
	}
	return clamp(dot(a, b)/denom, -1, 1)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
