package audio

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

// TestSignalSource generates a deterministic synthetic waveform in place of
// live hardware input. Every ReadBatch call produces samples immediately, so
// tests never wait on real time.
type TestSignalSource struct {
	waveform  string
	frequency float64
	amplitude float64
	rate      float64

	phase   float64
	rng     *rand.Rand
	started bool
}

// NewTestSignalSource creates a generator from validated test-signal
// settings at the given sample rate.
func NewTestSignalSource(settings conf.TestSignalSettings, sampleRate int) (*TestSignalSource, error) {
	if err := conf.ValidateTestSignalSettings(&settings); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate: %d", sampleRate).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("operation", "create_test_signal").
			Build()
	}

	return &TestSignalSource{
		waveform:  settings.Waveform,
		frequency: settings.FrequencyHz,
		amplitude: settings.Amplitude,
		rate:      float64(sampleRate),
		// Fixed seed keeps the noise waveform reproducible across runs.
		rng: rand.New(rand.NewPCG(0x9e3779b9, 0x85ebca77)),
	}, nil
}

// Start marks the source active.
func (t *TestSignalSource) Start(_ context.Context) error {
	t.started = true
	return nil
}

// Stop marks the source inactive.
func (t *TestSignalSource) Stop() error {
	t.started = false
	return nil
}

// Name identifies the source in log records.
func (t *TestSignalSource) Name() string {
	return "testsignal:" + t.waveform
}

// ReadBatch fills dst with the next len(dst) samples of the waveform.
func (t *TestSignalSource) ReadBatch(dst []float64) (int, error) {
	if !t.started {
		return 0, errors.Newf("test signal source not started").
			Component("audio").
			Category(errors.CategoryState).
			Build()
	}

	step := t.frequency / t.rate
	for i := range dst {
		switch t.waveform {
		case "sine":
			dst[i] = t.amplitude * math.Sin(2*math.Pi*t.phase)
		case "square":
			if t.phase < 0.5 {
				dst[i] = t.amplitude
			} else {
				dst[i] = -t.amplitude
			}
		case "triangle":
			// Rises 0..1 over the first half cycle, falls back over the second.
			dst[i] = t.amplitude * (4*math.Abs(t.phase-0.5) - 1)
		case "noise":
			dst[i] = t.amplitude * (2*t.rng.Float64() - 1)
		}

		t.phase += step
		if t.phase >= 1 {
			t.phase -= math.Floor(t.phase)
		}
	}
	return len(dst), nil
}
