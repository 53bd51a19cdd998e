package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Audio = conf.AudioSettings{
		SampleRate: conf.SampleRate,
		BatchSize:  128,
		WindowSize: 2048,
		HopSize:    512,
		TestSignal: conf.TestSignalSettings{
			Enabled:     true,
			Waveform:    "sine",
			FrequencyHz: 440,
			Amplitude:   0.5,
		},
	}
	settings.Pool = conf.PoolSettings{
		Size:           8,
		Timeout:        2000,
		PauseThreshold: 50,
		StatusInterval: 20,
	}
	settings.Detector = conf.DetectorSettings{
		FreqMin:    60,
		FreqMax:    1500,
		Threshold:  0.1,
		NoiseFloor: 0.01,
	}
	settings.Smoother.Pitch = conf.SmootherSettings{
		Median3:   true,
		AlphaMin:  0.05,
		AlphaMax:  0.9,
		DeltaMid:  8,
		Steepness: 0.5,
	}
	settings.Smoother.Volume = conf.SmootherSettings{
		AlphaMin:  0.05,
		AlphaMax:  0.9,
		Deadband:  0.002,
		DeltaMid:  0.05,
		Steepness: 60,
	}
	settings.Realtime = conf.RealtimeSettings{Interval: 10}
	return settings
}

func startedEngine(t *testing.T, settings *conf.Settings) *Engine {
	t.Helper()
	e, err := New(settings, nil)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, e.Shutdown(ctx))
	})
	return e
}

func TestEngine_UpdateBeforeInitialize(t *testing.T) {
	e, err := New(testSettings(), nil)
	require.NoError(t, err)
	assert.False(t, e.IsReady())

	_, err = e.Update()
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryState))
}

func TestEngine_New_RejectsInvalidSettings(t *testing.T) {
	settings := testSettings()
	settings.Pool.Size = conf.PoolSizeMax + 1
	_, err := New(settings, nil)
	require.Error(t, err)
}

func TestEngine_EndToEndStreaming(t *testing.T) {
	e := startedEngine(t, testSettings())
	require.True(t, e.IsReady())

	// Stream at least 100 batches of 128 frames through the pipeline.
	deadline := time.Now().Add(10 * time.Second)
	var detected *Result
	for {
		result, err := e.Update()
		require.NoError(t, err)
		for _, record := range result.Errors {
			t.Fatalf("unexpected capture error: %s: %s", record.Kind, record.Message)
		}
		if result.Pitch.Detected && detected == nil {
			r := result
			detected = &r
		}

		_, _, consumed := e.BatchCounts()
		if consumed >= 100 && detected != nil {
			break
		}
		require.True(t, time.Now().Before(deadline), "timed out after %d batches", consumed)
		time.Sleep(time.Millisecond)
	}

	require.NotNil(t, detected)
	assert.InDelta(t, 440, detected.Pitch.FrequencyHz, 1.0)
	assert.Greater(t, detected.Pitch.Clarity, 0.9)
	assert.Greater(t, detected.Volume.RMS, 0.1, "a half-scale sine carries clear energy")

	// Give the capture side a beat to report final statistics.
	time.Sleep(50 * time.Millisecond)
	_, err := e.Update()
	require.NoError(t, err)

	stats, ok := e.PoolStats()
	require.True(t, ok, "status reports should have arrived")
	assert.Zero(t, stats.Misses, "a drained host keeps the pool from exhausting")
	assert.Zero(t, stats.Lost)
	assert.GreaterOrEqual(t, stats.HitRate(), 0.99)

	assembly := e.AssemblyStats()
	assert.GreaterOrEqual(t, assembly.TotalSamples, uint64(100*128))
}

func TestEngine_StalledHostDropsBatchesWithoutExhaustingPool(t *testing.T) {
	e := startedEngine(t, testSettings())

	// Let the capture side outrun a host that is not updating. At the
	// 128-frame batch cadence this queues far more batches than the
	// outbound channel holds.
	time.Sleep(200 * time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := e.Update()
		require.NoError(t, err)

		stats, ok := e.PoolStats()
		_, dropped, _ := e.BatchCounts()
		if ok && dropped > 0 {
			assert.Zero(t, stats.Misses,
				"a stalled host must drop batches, not exhaust the pool")
			assert.Zero(t, stats.Lost,
				"dropped batches release their buffers immediately")
			assert.GreaterOrEqual(t, stats.HitRate(), 0.99)
			return
		}
		require.True(t, time.Now().Before(deadline), "no drops reported")
		time.Sleep(time.Millisecond)
	}
}

func TestEngine_DiagnosticsAndCommands(t *testing.T) {
	e := startedEngine(t, testSettings())

	assert.Equal(t, 60.0, e.DetectorConfig().FreqMin)

	t.Run("pool update within bounds accepted", func(t *testing.T) {
		pool := testSettings().Pool
		pool.Size = 16
		require.NoError(t, e.UpdatePoolConfig(pool))
	})

	t.Run("out-of-bounds pool update rejected before sending", func(t *testing.T) {
		pool := testSettings().Pool
		pool.Timeout = conf.PoolTimeoutMsMax + 1
		err := e.UpdatePoolConfig(pool)
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	})

	t.Run("test signal switch", func(t *testing.T) {
		require.NoError(t, e.SetTestSignal(conf.TestSignalSettings{
			Enabled:     true,
			Waveform:    "square",
			FrequencyHz: 220,
			Amplitude:   0.3,
		}))

		err := e.SetTestSignal(conf.TestSignalSettings{Waveform: "sawtooth", FrequencyHz: 220, Amplitude: 0.3})
		require.Error(t, err)
	})
}

func TestEngine_ShutdownIsIdempotent(t *testing.T) {
	e, err := New(testSettings(), nil)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.False(t, e.IsReady())
	require.NoError(t, e.Shutdown(ctx))

	_, err = e.Update()
	require.Error(t, err)
}
