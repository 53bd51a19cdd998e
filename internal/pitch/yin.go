// Package pitch implements fundamental frequency detection on analysis
// windows using a cumulative-mean-normalized difference function with
// parabolic refinement.
package pitch

import (
	"math"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

// Estimate is the result of analyzing one window. When Detected is false
// the other fields are zero.
type Estimate struct {
	Detected    bool
	FrequencyHz float64
	Clarity     float64 // 1 - normalized difference at the chosen lag
}

// Detector estimates the fundamental frequency of fixed-size analysis
// windows. Each call is a pure function of its input; the struct only
// carries configuration, pre-allocated scratch space and counters, so a
// detector must not be shared across goroutines.
type Detector struct {
	sampleRate int
	windowSize int
	freqMin    float64
	freqMax    float64
	threshold  float64
	noiseFloor float64

	minLag int
	maxLag int

	// The difference function is computed through an FFT autocorrelation
	// so cost stays O(n log n) for large windows.
	fft     *fourier.FFT
	fftSize int
	padded  []float64
	coeff   []complex128
	acf     []float64
	prefix  []float64 // prefix[i] = sum of squares of window[:i]
	cmnd    []float64

	lagSearches uint64
}

// New creates a detector for the given window size. Settings are validated
// against the sample rate, rejecting search ranges beyond Nyquist.
func New(settings conf.DetectorSettings, sampleRate, windowSize int) (*Detector, error) {
	if err := conf.ValidateDetectorSettings(&settings, sampleRate); err != nil {
		return nil, err
	}
	if windowSize < conf.WindowSizeMin || windowSize > conf.WindowSizeMax {
		return nil, errors.Newf("invalid window size: %d, must be in range [%d, %d]",
			windowSize, conf.WindowSizeMin, conf.WindowSizeMax).
			Component("pitch").
			Category(errors.CategoryValidation).
			Build()
	}

	minLag := int(float64(sampleRate) / settings.FreqMax)
	if minLag < 2 {
		minLag = 2
	}
	maxLag := int(math.Ceil(float64(sampleRate) / settings.FreqMin))
	if maxLag > windowSize/2 {
		maxLag = windowSize / 2
	}
	if minLag >= maxLag {
		return nil, errors.Newf("frequency range [%g, %g] leaves no usable lags for window size %d",
			settings.FreqMin, settings.FreqMax, windowSize).
			Component("pitch").
			Category(errors.CategoryValidation).
			Build()
	}

	// Zero padding to twice the window avoids circular wrap-around in the
	// autocorrelation.
	fftSize := 1
	for fftSize < 2*windowSize {
		fftSize <<= 1
	}

	return &Detector{
		sampleRate: sampleRate,
		windowSize: windowSize,
		freqMin:    settings.FreqMin,
		freqMax:    settings.FreqMax,
		threshold:  settings.Threshold,
		noiseFloor: settings.NoiseFloor,
		minLag:     minLag,
		maxLag:     maxLag,
		fft:        fourier.NewFFT(fftSize),
		fftSize:    fftSize,
		padded:     make([]float64, fftSize),
		coeff:      make([]complex128, fftSize/2+1),
		acf:        make([]float64, fftSize),
		prefix:     make([]float64, windowSize+1),
		cmnd:       make([]float64, maxLag+1),
	}, nil
}

// WindowSize returns the window length the detector was built for.
func (d *Detector) WindowSize() int {
	return d.windowSize
}

// LagSearchCount returns how many windows have gone through the lag search,
// excluding windows rejected by the silence early-exit.
func (d *Detector) LagSearchCount() uint64 {
	return d.lagSearches
}

// Estimate analyzes one window. Windows below the noise floor, or holding
// any non-finite sample, return Detected=false without running the lag
// search.
func (d *Detector) Estimate(window []float64) (Estimate, error) {
	if len(window) != d.windowSize {
		return Estimate{}, errors.Newf("window holds %d samples, detector expects %d",
			len(window), d.windowSize).
			Component("pitch").
			Category(errors.CategoryAnalysis).
			Build()
	}

	rms := math.Sqrt(f64.DotProduct(window, window) / float64(len(window)))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		// A single NaN or Inf sample poisons the whole difference function.
		return Estimate{}, nil
	}
	if rms < d.noiseFloor {
		return Estimate{}, nil
	}

	d.lagSearches++
	d.difference(window)
	d.normalize()

	tau := d.bestLag()
	if tau < 0 {
		return Estimate{}, nil
	}

	refined := d.interpolate(tau)
	frequency := float64(d.sampleRate) / refined
	if frequency < d.freqMin || frequency > d.freqMax {
		return Estimate{}, nil
	}

	clarity := 1 - d.cmnd[tau]
	if clarity < 0 {
		clarity = 0
	}
	return Estimate{Detected: true, FrequencyHz: frequency, Clarity: clarity}, nil
}

// difference fills cmnd with the raw difference function
// d(tau) = sum_i (x[i] - x[i+tau])^2 for tau in [0, maxLag], expanded as
// prefix(n-tau) + suffix(tau) - 2*acf(tau) with the autocorrelation taken
// through the FFT.
func (d *Detector) difference(window []float64) {
	n := d.windowSize

	copy(d.padded, window)
	for i := n; i < d.fftSize; i++ {
		d.padded[i] = 0
	}
	d.fft.Coefficients(d.coeff, d.padded)
	for i, c := range d.coeff {
		re := real(c)
		im := imag(c)
		d.coeff[i] = complex(re*re+im*im, 0)
	}
	d.fft.Sequence(d.acf, d.coeff)
	// gonum's inverse transform is unnormalized.
	scale := 1 / float64(d.fftSize)

	d.prefix[0] = 0
	for i, s := range window {
		d.prefix[i+1] = d.prefix[i] + s*s
	}
	total := d.prefix[n]

	for tau := 0; tau <= d.maxLag; tau++ {
		energy := d.prefix[n-tau] + (total - d.prefix[tau])
		d.cmnd[tau] = energy - 2*d.acf[tau]*scale
	}
}

// normalize converts the raw difference in place to its cumulative-mean
// form: d'(0) = 1, d'(tau) = d(tau) * tau / sum(d(1..tau)).
func (d *Detector) normalize() {
	sum := 0.0
	d.cmnd[0] = 1
	for tau := 1; tau <= d.maxLag; tau++ {
		sum += d.cmnd[tau]
		if sum <= 0 {
			d.cmnd[tau] = 1
		} else {
			d.cmnd[tau] = d.cmnd[tau] * float64(tau) / sum
		}
	}
}

// bestLag returns the first lag in the search range where the normalized
// difference drops below the threshold and sits at a local minimum, or -1
// when no lag qualifies.
func (d *Detector) bestLag() int {
	for tau := d.minLag; tau <= d.maxLag; tau++ {
		// Written so NaN values never qualify.
		if !(d.cmnd[tau] < d.threshold) {
			continue
		}
		// Walk down the valley to its floor.
		for tau+1 <= d.maxLag && d.cmnd[tau+1] < d.cmnd[tau] {
			tau++
		}
		return tau
	}
	return -1
}

// interpolate refines an integer lag with a parabola through the
// neighboring normalized difference values.
func (d *Detector) interpolate(tau int) float64 {
	if tau <= 0 || tau >= d.maxLag {
		return float64(tau)
	}
	left := d.cmnd[tau-1]
	mid := d.cmnd[tau]
	right := d.cmnd[tau+1]

	denom := 2 * (left - 2*mid + right)
	if denom == 0 {
		return float64(tau)
	}
	shift := (left - right) / denom
	if shift > 0.5 || shift < -0.5 {
		return float64(tau)
	}
	return float64(tau) + shift
}
