package utils

import "math"

// NormalizeL2 scales the vector in place so its L2 norm is 1. The squared
// magnitude is accumulated in float64 to avoid overflow on long vectors.
// A zero vector is left untouched.
func NormalizeL2(vec []float32) {
	var sq float64
	for _, v := range vec {
		sq += float64(v) * float64(v)
	}
	if sq == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sq))
	for i := range vec {
		vec[i] *= inv
	}
}
