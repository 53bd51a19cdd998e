package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pitchtrack-go/internal/audio"
	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

func validPool() conf.PoolSettings {
	return conf.PoolSettings{
		Size:           8,
		Timeout:        2000,
		PauseThreshold: 50,
		StatusInterval: 1000,
	}
}

func validSignal() conf.TestSignalSettings {
	return conf.TestSignalSettings{
		Enabled:     true,
		Waveform:    "sine",
		FrequencyHz: 440,
		Amplitude:   0.5,
	}
}

func filledBuffer(t *testing.T, samples ...float64) *audio.Buffer {
	t.Helper()
	b := audio.NewFallbackBuffer(len(samples))
	require.Equal(t, len(samples), b.CopyFrom(samples))
	return b
}

func TestEndpoint_MonotonicIDsPerDirection(t *testing.T) {
	t.Parallel()

	e := NewEndpoint()

	first, err := e.NewSetConfig(validPool())
	require.NoError(t, err)
	second := e.NewTeardown()
	status := e.NewStatus(audio.PoolStats{}, 0, 0)

	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(2), second.ID)
	assert.Equal(t, uint64(1), status.ID, "directions count independently")
	assert.Equal(t, ToCapture, first.Direction)
	assert.Equal(t, ToHost, status.Direction)
}

func TestEndpoint_FactoryValidation(t *testing.T) {
	t.Parallel()

	e := NewEndpoint()

	t.Run("set config rejects out-of-bounds pool size", func(t *testing.T) {
		t.Parallel()
		bad := validPool()
		bad.Size = conf.PoolSizeMax + 1
		_, err := e.NewSetConfig(bad)
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	})

	t.Run("set test signal rejects unknown waveform", func(t *testing.T) {
		t.Parallel()
		bad := validSignal()
		bad.Waveform = "sawtooth"
		_, err := e.NewSetTestSignal(bad)
		require.Error(t, err)
	})

	t.Run("audio batch rejects nil buffer", func(t *testing.T) {
		t.Parallel()
		_, err := e.NewAudioDataBatch(nil, 1, 1)
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	})

	t.Run("audio batch rejects frame count beyond buffer", func(t *testing.T) {
		t.Parallel()
		b := filledBuffer(t, 1, 2, 3)
		_, err := e.NewAudioDataBatch(b, 4, 1)
		require.Error(t, err)
	})

	t.Run("release rejects nil buffer", func(t *testing.T) {
		t.Parallel()
		_, err := e.NewReleaseBuffer(nil)
		require.Error(t, err)
	})

	t.Run("error report rejects empty message", func(t *testing.T) {
		t.Parallel()
		_, err := e.NewError("buffer-timeout", "")
		require.Error(t, err)
	})

	t.Run("error report rejects message beyond wire limit", func(t *testing.T) {
		t.Parallel()
		_, err := e.NewError("buffer-timeout", strings.Repeat("x", maxWireStr+1))
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

		env, err := e.NewError("buffer-timeout", strings.Repeat("x", maxWireStr))
		require.NoError(t, err)
		report := env.Payload.(ErrorReport)
		assert.Len(t, report.Message, maxWireStr)
	})
}

func TestTakeBufferConsumesOnce(t *testing.T) {
	t.Parallel()

	e := NewEndpoint()
	b := filledBuffer(t, 0.1, 0.2)

	env, err := e.NewAudioDataBatch(b, 2, 7)
	require.NoError(t, err)

	batch, ok := env.Payload.(*AudioDataBatch)
	require.True(t, ok)

	taken := batch.TakeBuffer()
	assert.Same(t, b, taken)
	assert.Nil(t, batch.TakeBuffer(), "a moved buffer cannot be taken twice")
}

func TestValidate_DirectionMismatch(t *testing.T) {
	t.Parallel()

	e := NewEndpoint()
	env := e.NewTeardown()

	require.NoError(t, Validate(env, ToCapture))

	err := Validate(env, ToHost)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryProtocol))

	err = Validate(nil, ToHost)
	require.Error(t, err)
}
