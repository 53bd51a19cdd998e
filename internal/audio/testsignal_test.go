package audio

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pitchtrack-go/internal/conf"
)

func testSignalSettings(waveform string) conf.TestSignalSettings {
	return conf.TestSignalSettings{
		Enabled:     true,
		Waveform:    waveform,
		FrequencyHz: 440,
		Amplitude:   0.5,
	}
}

func TestNewTestSignalSource_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewTestSignalSource(conf.TestSignalSettings{
		Enabled:  true,
		Waveform: "sawtooth",
	}, conf.SampleRate)
	require.Error(t, err)

	_, err = NewTestSignalSource(testSignalSettings("sine"), 0)
	require.Error(t, err)
}

func TestTestSignalSource_RequiresStart(t *testing.T) {
	t.Parallel()

	src, err := NewTestSignalSource(testSignalSettings("sine"), conf.SampleRate)
	require.NoError(t, err)

	_, err = src.ReadBatch(make([]float64, 16))
	assert.Error(t, err)
}

func TestTestSignalSource_SineIsDeterministic(t *testing.T) {
	t.Parallel()

	read := func() []float64 {
		src, err := NewTestSignalSource(testSignalSettings("sine"), conf.SampleRate)
		require.NoError(t, err)
		require.NoError(t, src.Start(context.Background()))
		out := make([]float64, 1024)
		n, err := src.ReadBatch(out)
		require.NoError(t, err)
		require.Equal(t, len(out), n)
		return out
	}

	first := read()
	second := read()
	assert.Equal(t, first, second, "same settings must produce the same samples")
}

func TestTestSignalSource_SineMatchesAnalyticForm(t *testing.T) {
	t.Parallel()

	src, err := NewTestSignalSource(testSignalSettings("sine"), conf.SampleRate)
	require.NoError(t, err)
	require.NoError(t, src.Start(context.Background()))

	out := make([]float64, 480)
	_, err = src.ReadBatch(out)
	require.NoError(t, err)

	for i, got := range out {
		want := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(conf.SampleRate))
		assert.InDelta(t, want, got, 1e-9, "sample %d", i)
	}
}

func TestTestSignalSource_PhaseContinuesAcrossBatches(t *testing.T) {
	t.Parallel()

	src, err := NewTestSignalSource(testSignalSettings("sine"), conf.SampleRate)
	require.NoError(t, err)
	require.NoError(t, src.Start(context.Background()))

	joined := make([]float64, 0, 256)
	batch := make([]float64, 64)
	for range 4 {
		_, err := src.ReadBatch(batch)
		require.NoError(t, err)
		joined = append(joined, batch...)
	}

	for i, got := range joined {
		want := 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(conf.SampleRate))
		assert.InDelta(t, want, got, 1e-9, "sample %d", i)
	}
}

func TestTestSignalSource_WaveformsStayWithinAmplitude(t *testing.T) {
	t.Parallel()

	for _, waveform := range []string{"sine", "square", "triangle", "noise"} {
		t.Run(waveform, func(t *testing.T) {
			t.Parallel()
			src, err := NewTestSignalSource(testSignalSettings(waveform), conf.SampleRate)
			require.NoError(t, err)
			require.NoError(t, src.Start(context.Background()))

			out := make([]float64, 2048)
			_, err = src.ReadBatch(out)
			require.NoError(t, err)

			for _, s := range out {
				assert.LessOrEqual(t, math.Abs(s), 0.5+1e-9)
			}
		})
	}
}
