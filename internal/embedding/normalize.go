package embedding

import "math"

// normalizeL2 scales v in place to unit length. Cosine scoring downstream
// assumes unit vectors, so every provider normalizes before returning. Zero
// vectors are left unchanged.
func normalizeL2(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
