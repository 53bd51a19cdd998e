// Package smoother implements an adaptive exponential smoother with
// optional causal median and Hampel pre-filters. Small input moves are
// damped hard, large moves track quickly, with optional hysteresis so the
// response does not chatter around a single threshold.
package smoother

import (
	"math"
	"sort"

	"github.com/tphakala/pitchtrack-go/internal/conf"
)

// Smoother filters one scalar stream. It is not safe for concurrent use;
// each stream gets its own instance.
type Smoother struct {
	settings conf.SmootherSettings

	value  float64
	primed bool

	// Median-of-3 history of the raw input.
	m3     [3]float64
	m3Seen int

	// Causal Hampel window of post-median samples.
	window  []float64
	winSeen int
	winIdx  int
	scratch []float64

	movingMode bool
}

// New creates a smoother, rejecting invalid settings.
func New(settings conf.SmootherSettings) (*Smoother, error) {
	if err := conf.ValidateSmootherSettings(&settings); err != nil {
		return nil, err
	}

	s := &Smoother{settings: settings}
	if settings.Hampel {
		s.window = make([]float64, settings.HampelWindow)
		s.scratch = make([]float64, settings.HampelWindow)
	}
	return s, nil
}

// Reset clears all internal state so the next Update behaves like the
// first sample of a fresh stream.
func (s *Smoother) Reset() {
	s.value = 0
	s.primed = false
	s.m3Seen = 0
	s.winSeen = 0
	s.winIdx = 0
	s.movingMode = false
}

// Value returns the current smoothed output.
func (s *Smoother) Value() float64 {
	return s.value
}

// Moving reports whether hysteresis currently holds the smoother in its
// fast-tracking mode.
func (s *Smoother) Moving() bool {
	return s.movingMode
}

// Update consumes one input sample and returns the new smoothed output.
func (s *Smoother) Update(x float64) float64 {
	if s.settings.Median3 {
		x = s.median3(x)
	}
	if s.settings.Hampel {
		x = s.hampel(x)
	}

	if !s.primed {
		s.primed = true
		s.value = x
		return x
	}

	delta := math.Abs(x - s.value)
	alpha := s.blendFactor(delta)
	s.value = (1-alpha)*s.value + alpha*x
	return s.value
}

// Apply runs the whole src slice through a freshly reset smoother, writing
// outputs to dst. dst and src must have equal length. Resetting first makes
// offline runs reproducible regardless of prior streaming use.
func (s *Smoother) Apply(dst, src []float64) {
	s.Reset()
	for i, x := range src {
		dst[i] = s.Update(x)
	}
}

// blendFactor maps an input move to a smoothing factor in
// [AlphaMin, AlphaMax] through a logistic curve, with optional deadband
// and two-threshold hysteresis.
func (s *Smoother) blendFactor(delta float64) float64 {
	cfg := &s.settings

	if cfg.Deadband > 0 && delta < cfg.Deadband {
		if cfg.Hysteresis && delta < cfg.DeltaDown {
			s.movingMode = false
		}
		return cfg.AlphaMin
	}

	mid := cfg.DeltaMid
	if cfg.Hysteresis {
		// The midpoint to beat depends on the current mode, so crossing
		// one boundary does not immediately re-arm the other.
		if s.movingMode {
			mid = cfg.DeltaDown
		} else {
			mid = cfg.DeltaUp
		}
		if delta > cfg.DeltaUp {
			s.movingMode = true
		} else if delta < cfg.DeltaDown {
			s.movingMode = false
		}
	}

	span := cfg.AlphaMax - cfg.AlphaMin
	return cfg.AlphaMin + span/(1+math.Exp(-cfg.Steepness*(delta-mid)))
}

// median3 returns the median of the last three raw inputs, passing the
// first two samples through unchanged.
func (s *Smoother) median3(x float64) float64 {
	s.m3[0], s.m3[1], s.m3[2] = s.m3[1], s.m3[2], x
	if s.m3Seen < 3 {
		s.m3Seen++
	}
	if s.m3Seen < 3 {
		return x
	}

	a, b, c := s.m3[0], s.m3[1], s.m3[2]
	switch {
	case (a <= b && b <= c) || (c <= b && b <= a):
		return b
	case (b <= a && a <= c) || (c <= a && a <= b):
		return a
	default:
		return c
	}
}

// hampel replaces x with the window median when it deviates from it by
// more than HampelSigma scaled MADs. The raw sample still enters the
// window, so a sustained level change wins the median within half a
// window while an isolated spike never does.
func (s *Smoother) hampel(x float64) float64 {
	s.window[s.winIdx] = x
	s.winIdx = (s.winIdx + 1) % len(s.window)
	if s.winSeen < len(s.window) {
		s.winSeen++
	}
	if s.winSeen < len(s.window) {
		return x
	}

	copy(s.scratch, s.window)
	sort.Float64s(s.scratch)
	median := s.scratch[len(s.scratch)/2]

	for i, v := range s.window {
		s.scratch[i] = math.Abs(v - median)
	}
	sort.Float64s(s.scratch)
	mad := s.scratch[len(s.scratch)/2]

	deviation := math.Abs(x - median)
	if mad == 0 {
		// A flat window makes any deviation an outlier.
		if deviation > 0 {
			return median
		}
		return x
	}
	if deviation > s.settings.HampelSigma*1.4826*mad {
		return median
	}
	return x
}
