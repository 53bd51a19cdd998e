package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeasureLevel(t *testing.T) {
	t.Parallel()

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Level{}, MeasureLevel(nil))
	})

	t.Run("constant signal", func(t *testing.T) {
		t.Parallel()
		samples := make([]float64, 64)
		for i := range samples {
			samples[i] = -0.25
		}
		level := MeasureLevel(samples)
		assert.InDelta(t, 0.25, level.Peak, 1e-12)
		assert.InDelta(t, 0.25, level.RMS, 1e-12)
	})

	t.Run("full scale sine", func(t *testing.T) {
		t.Parallel()
		samples := make([]float64, 4800)
		for i := range samples {
			samples[i] = math.Sin(2 * math.Pi * 100 * float64(i) / 4800)
		}
		level := MeasureLevel(samples)
		assert.InDelta(t, 1.0, level.Peak, 1e-3)
		assert.InDelta(t, 1/math.Sqrt2, level.RMS, 1e-3)
	})
}

func TestRMS(t *testing.T) {
	t.Parallel()

	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS([]float64{0.5, -0.5, 0.5, -0.5}), 1e-12)
}
