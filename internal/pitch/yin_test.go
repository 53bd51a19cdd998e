package pitch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

func detectorSettings() conf.DetectorSettings {
	return conf.DetectorSettings{
		FreqMin:    60,
		FreqMax:    1500,
		Threshold:  0.1,
		NoiseFloor: 0.01,
	}
}

func sineWindow(frequency float64, sampleRate, size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate))
	}
	return window
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		d, err := New(detectorSettings(), conf.SampleRate, 2048)
		require.NoError(t, err)
		assert.Equal(t, 2048, d.WindowSize())
	})

	t.Run("range above nyquist", func(t *testing.T) {
		t.Parallel()
		bad := detectorSettings()
		bad.FreqMax = float64(conf.SampleRate)
		_, err := New(bad, conf.SampleRate, 2048)
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	})

	t.Run("window size out of bounds", func(t *testing.T) {
		t.Parallel()
		_, err := New(detectorSettings(), conf.SampleRate, conf.WindowSizeMin/2)
		require.Error(t, err)
	})

	t.Run("range leaves no lags", func(t *testing.T) {
		t.Parallel()
		narrow := detectorSettings()
		narrow.FreqMin = 1000
		narrow.FreqMax = 1500
		_, err := New(narrow, conf.SampleRate, conf.WindowSizeMin)
		require.NoError(t, err)

		// At window size 256 the lag ceiling is 128; a 370 Hz minimum lag
		// of 129 leaves nothing to search.
		narrow.FreqMin = 300
		narrow.FreqMax = 370
		_, err = New(narrow, conf.SampleRate, conf.WindowSizeMin)
		require.Error(t, err)
	})
}

func TestEstimate_PureSine440(t *testing.T) {
	t.Parallel()

	d, err := New(detectorSettings(), conf.SampleRate, 2048)
	require.NoError(t, err)

	est, err := d.Estimate(sineWindow(440, conf.SampleRate, 2048))
	require.NoError(t, err)
	require.True(t, est.Detected)
	assert.InDelta(t, 440, est.FrequencyHz, 1.0)
	assert.Greater(t, est.Clarity, 0.9, "a pure tone should be near-perfectly clear")
}

func TestEstimate_SweepAcrossRange(t *testing.T) {
	t.Parallel()

	d, err := New(detectorSettings(), conf.SampleRate, 2048)
	require.NoError(t, err)

	for _, frequency := range []float64{82.41, 110, 220, 329.63, 660, 1000} {
		est, err := d.Estimate(sineWindow(frequency, conf.SampleRate, 2048))
		require.NoError(t, err)
		require.True(t, est.Detected, "%g Hz should be detected", frequency)
		assert.InDelta(t, frequency, est.FrequencyHz, frequency*0.01,
			"%g Hz detected as %g", frequency, est.FrequencyHz)
	}
}

func TestEstimate_SilenceSkipsLagSearch(t *testing.T) {
	t.Parallel()

	d, err := New(detectorSettings(), conf.SampleRate, 2048)
	require.NoError(t, err)

	est, err := d.Estimate(make([]float64, 2048))
	require.NoError(t, err)
	assert.False(t, est.Detected)
	assert.Zero(t, d.LagSearchCount(), "silence must not reach the lag search")

	_, err = d.Estimate(sineWindow(440, conf.SampleRate, 2048))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.LagSearchCount())
}

func TestEstimate_ConstantSignalUndetected(t *testing.T) {
	t.Parallel()

	d, err := New(detectorSettings(), conf.SampleRate, 2048)
	require.NoError(t, err)

	window := make([]float64, 2048)
	for i := range window {
		window[i] = 0.3
	}
	est, err := d.Estimate(window)
	require.NoError(t, err)
	assert.False(t, est.Detected, "a DC level has no periodicity to report")
}

func TestEstimate_FrequencyBelowRangeUndetected(t *testing.T) {
	t.Parallel()

	d, err := New(detectorSettings(), conf.SampleRate, 2048)
	require.NoError(t, err)

	// 30 Hz has a 1600-sample period, beyond the lag ceiling for this window.
	est, err := d.Estimate(sineWindow(30, conf.SampleRate, 2048))
	require.NoError(t, err)
	assert.False(t, est.Detected)
}

func TestEstimate_NonFiniteWindowUndetected(t *testing.T) {
	t.Parallel()

	d, err := New(detectorSettings(), conf.SampleRate, 2048)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value float64
	}{
		{name: "nan_sample", value: math.NaN()},
		{name: "positive_inf_sample", value: math.Inf(1)},
		{name: "negative_inf_sample", value: math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := sineWindow(440, conf.SampleRate, 2048)
			window[517] = tt.value

			before := d.LagSearchCount()
			est, err := d.Estimate(window)
			require.NoError(t, err)
			assert.False(t, est.Detected)
			assert.Zero(t, est.FrequencyHz)
			assert.Zero(t, est.Clarity)
			assert.Equal(t, before, d.LagSearchCount(),
				"a poisoned window must not reach the lag search")
		})
	}
}

func TestEstimate_WrongWindowLength(t *testing.T) {
	t.Parallel()

	d, err := New(detectorSettings(), conf.SampleRate, 2048)
	require.NoError(t, err)

	_, err = d.Estimate(make([]float64, 1024))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryAnalysis))
}
