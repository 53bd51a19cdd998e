package audio

import (
	"math"

	"github.com/tphakala/simd/f64"
)

// Level holds loudness measurements for one span of samples.
type Level struct {
	Peak float64 // largest absolute sample value
	RMS  float64 // root mean square
}

// MeasureLevel computes peak and RMS loudness over the given samples.
func MeasureLevel(samples []float64) Level {
	if len(samples) == 0 {
		return Level{}
	}

	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}

	energy := f64.DotProduct(samples, samples)
	return Level{
		Peak: peak,
		RMS:  math.Sqrt(energy / float64(len(samples))),
	}
}

// RMS computes the root mean square of the given samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(f64.DotProduct(samples, samples) / float64(len(samples)))
}
