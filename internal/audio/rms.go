package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Normalize converts 8-bit unsigned samples (128 is silence) to [-1, 1).
func Normalize(dst []float64, window []uint8) []float64 {
	if cap(dst) < len(window) {
		dst = make([]float64, len(window))
	}
	dst = dst[:len(window)]
	for i, v := range window {
		dst[i] = float64(v)/128 - 1
	}
	return dst
}

// RMSFloat is the root-mean-square of normalized samples. Empty input is 0.
func RMSFloat(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
}

// RMS is the root-mean-square of an 8-bit unsigned window on the 0-1 scale.
func RMS(window []uint8) float64 {
	return RMSFloat(Normalize(nil, window))
}
