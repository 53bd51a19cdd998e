// Package engine wires the capture context, message protocol, pitch
// detector and smoothers into one analysis pipeline with an explicit
// lifecycle. All engine state hangs off the Engine value; there are no
// package-level singletons.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tphakala/pitchtrack-go/internal/audio"
	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
	"github.com/tphakala/pitchtrack-go/internal/logging"
	"github.com/tphakala/pitchtrack-go/internal/observability/metrics"
	"github.com/tphakala/pitchtrack-go/internal/pitch"
	"github.com/tphakala/pitchtrack-go/internal/protocol"
	"github.com/tphakala/pitchtrack-go/internal/smoother"
)

// PitchResult is the smoothed pitch estimate of one tick.
type PitchResult struct {
	Detected    bool
	FrequencyHz float64
	Clarity     float64
}

// ErrorRecord is one non-fatal condition reported by the capture side.
type ErrorRecord struct {
	Kind      string
	Message   string
	Timestamp time.Time
}

// Result is the outcome of one host tick, handed to the consuming layer.
type Result struct {
	Volume    audio.Level
	Pitch     PitchResult
	Errors    []ErrorRecord
	Timestamp time.Time
}

// Engine owns the full analysis pipeline. The host side (Update and the
// diagnostic queries) must be driven from a single goroutine; the capture
// side runs on its own goroutine behind the message channels.
type Engine struct {
	settings *conf.Settings

	endpoint  *protocol.Endpoint
	toCapture chan *protocol.Envelope
	toHost    chan *protocol.Envelope

	capture *captureContext
	cancel  context.CancelFunc

	assembly      *audio.CaptureAssembly
	detector      *pitch.Detector
	pitchSmoother *smoother.Smoother
	peakSmoother  *smoother.Smoother
	rmsSmoother   *smoother.Smoother
	window        []float64

	lastStatus    protocol.Status
	hasStatus     bool
	pendingErrors []ErrorRecord
	lastPitch     PitchResult
	batchesSeen   uint64

	ready   atomic.Bool
	log     *slog.Logger
	metrics *metrics.EngineMetrics
}

// New creates an engine from validated settings. Initialize must be called
// before the first Update.
func New(settings *conf.Settings, m *metrics.EngineMetrics) (*Engine, error) {
	if err := conf.ValidateSettings(settings); err != nil {
		return nil, err
	}

	detector, err := pitch.New(settings.Detector, settings.Audio.SampleRate, settings.Audio.WindowSize)
	if err != nil {
		return nil, err
	}
	pitchSmoother, err := smoother.New(settings.Smoother.Pitch)
	if err != nil {
		return nil, err
	}
	peakSmoother, err := smoother.New(settings.Smoother.Volume)
	if err != nil {
		return nil, err
	}
	rmsSmoother, err := smoother.New(settings.Smoother.Volume)
	if err != nil {
		return nil, err
	}

	return &Engine{
		settings: settings,
		endpoint: protocol.NewEndpoint(),
		// Buffer returns and commands both fit comfortably in twice the
		// pool size.
		toCapture: make(chan *protocol.Envelope, 2*settings.Pool.Size),
		// Fewer outbound slots than pooled buffers: a lagging host fills
		// the queue while the pool still holds free buffers, so overload
		// hits the counted drop-and-reclaim path before any fallback
		// allocation. Pool size is at least 4.
		toHost: make(chan *protocol.Envelope, settings.Pool.Size-2),

		assembly:      audio.NewCaptureAssembly(settings.Audio.WindowSize, settings.Audio.HopSize),
		detector:      detector,
		pitchSmoother: pitchSmoother,
		peakSmoother:  peakSmoother,
		rmsSmoother:   rmsSmoother,
		window:        make([]float64, settings.Audio.WindowSize),

		log:     logging.ForService("engine"),
		metrics: m,
	}, nil
}

// Initialize opens the capture source and starts the capture context. A
// capture device failure is fatal and leaves the engine not ready; every
// later condition degrades gracefully instead.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.ready.Load() {
		return errors.Newf("engine already initialized").
			Component("engine").
			Category(errors.CategoryState).
			Build()
	}

	var source audio.CaptureSource
	if e.settings.Audio.TestSignal.Enabled {
		testSource, err := audio.NewTestSignalSource(e.settings.Audio.TestSignal, e.settings.Audio.SampleRate)
		if err != nil {
			return err
		}
		source = testSource
	} else {
		source = audio.NewDeviceSource(e.settings.Audio)
	}
	if err := source.Start(ctx); err != nil {
		return err
	}

	capture, err := newCaptureContext(e.settings, source, e.endpoint, e.toCapture, e.toHost, e.metrics)
	if err != nil {
		if stopErr := source.Stop(); stopErr != nil {
			e.log.Error("failed to stop capture source", "error", stopErr)
		}
		return err
	}
	e.capture = capture

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go capture.run(runCtx)

	e.ready.Store(true)
	e.log.Info("engine initialized",
		"source", source.Name(),
		"samplerate", e.settings.Audio.SampleRate,
		"batchsize", e.settings.Audio.BatchSize,
		"windowsize", e.settings.Audio.WindowSize)
	return nil
}

// IsReady reports whether the engine has been initialized and not shut down.
func (e *Engine) IsReady() bool {
	return e.ready.Load()
}

// Update drains pending capture messages, analyzes a window when one is
// ready, and returns the tick result. It never blocks on the capture side.
func (e *Engine) Update() (Result, error) {
	if !e.ready.Load() {
		return Result{}, errors.Newf("engine not initialized").
			Component("engine").
			Category(errors.CategoryState).
			Build()
	}

	e.drainFromCapture()

	result := Result{
		Pitch:     e.lastPitch,
		Errors:    e.takeErrors(),
		Timestamp: time.Now(),
	}

	if e.assembly.WindowReady() && e.assembly.Window(e.window) {
		e.analyzeWindow(&result)
	}
	return result, nil
}

// drainFromCapture consumes everything the capture side has queued.
func (e *Engine) drainFromCapture() {
	for {
		select {
		case env := <-e.toHost:
			e.handleFromCapture(env)
		default:
			return
		}
	}
}

func (e *Engine) handleFromCapture(env *protocol.Envelope) {
	if err := protocol.Validate(env, protocol.ToHost); err != nil {
		e.log.Warn("dropping invalid capture message", "error", err)
		if e.metrics != nil {
			e.metrics.RecordProtocolDrop(protocol.ToHost.String())
		}
		return
	}
	if e.metrics != nil {
		e.metrics.RecordMessage(protocol.ToHost.String(), env.Payload.Kind().String())
	}

	switch p := env.Payload.(type) {
	case *protocol.AudioDataBatch:
		buffer := p.TakeBuffer()
		overwritten := e.assembly.Append(buffer.Samples()[:p.FrameCount])
		if overwritten > 0 {
			e.log.Debug("assembly overwrote unconsumed samples", "count", overwritten)
		}
		if e.metrics != nil {
			e.metrics.RecordAssemblyWrite(p.FrameCount, overwritten)
		}
		e.batchesSeen++
		e.returnBuffer(buffer)
	case protocol.Status:
		e.lastStatus = p
		e.hasStatus = true
	case protocol.ErrorReport:
		e.pendingErrors = append(e.pendingErrors, ErrorRecord{
			Kind:      p.ErrorKind,
			Message:   p.Message,
			Timestamp: env.Timestamp,
		})
	}
}

// returnBuffer sends a consumed buffer back to the capture-side pool. If
// the command channel is saturated the buffer is abandoned; the pool's
// timeout reclamation covers the loss.
func (e *Engine) returnBuffer(buffer *audio.Buffer) {
	env, err := e.endpoint.NewReleaseBuffer(buffer)
	if err != nil {
		e.log.Error("failed to build release message", "error", err)
		return
	}
	select {
	case e.toCapture <- env:
	default:
		e.log.Warn("release channel full, buffer left to timeout reclamation",
			"sequence", buffer.Sequence())
		if e.metrics != nil {
			e.metrics.RecordProtocolDrop(protocol.ToCapture.String())
		}
	}
}

// analyzeWindow runs level metering, pitch detection and smoothing over
// the extracted window.
func (e *Engine) analyzeWindow(result *Result) {
	start := time.Now()

	level := audio.MeasureLevel(e.window)
	result.Volume = audio.Level{
		Peak: e.peakSmoother.Update(level.Peak),
		RMS:  e.rmsSmoother.Update(level.RMS),
	}

	estimate, err := e.detector.Estimate(e.window)
	if err != nil {
		// A malformed window is an analysis error, never a crash.
		result.Errors = append(result.Errors, ErrorRecord{
			Kind:      string(errors.CategoryAnalysis),
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		e.recordAnalysis("error", start, 0)
		return
	}

	if estimate.Detected {
		result.Pitch = PitchResult{
			Detected:    true,
			FrequencyHz: e.pitchSmoother.Update(estimate.FrequencyHz),
			Clarity:     estimate.Clarity,
		}
		e.recordAnalysis("detected", start, result.Pitch.FrequencyHz)
	} else {
		result.Pitch = PitchResult{}
		e.recordAnalysis("undetected", start, 0)
	}
	e.lastPitch = result.Pitch
}

func (e *Engine) recordAnalysis(outcome string, start time.Time, frequency float64) {
	if e.metrics != nil {
		e.metrics.RecordAnalysis(outcome, time.Since(start).Seconds(), frequency)
	}
}

func (e *Engine) takeErrors() []ErrorRecord {
	if len(e.pendingErrors) == 0 {
		return nil
	}
	taken := e.pendingErrors
	e.pendingErrors = nil
	return taken
}

// PoolStats returns the latest pool statistics reported by the capture
// side. The second return is false before the first status message.
func (e *Engine) PoolStats() (audio.PoolStats, bool) {
	return e.lastStatus.Pool, e.hasStatus
}

// BatchCounts returns how many batches the capture side has shipped and
// dropped, from the latest status report, plus how many the host consumed.
func (e *Engine) BatchCounts() (processed, dropped, consumed uint64) {
	return e.lastStatus.ProcessedCount, e.lastStatus.DroppedCount, e.batchesSeen
}

// AssemblyStats returns a snapshot of the host-side window assembly
// counters. Call from the same goroutine as Update.
func (e *Engine) AssemblyStats() audio.AssemblyStats {
	return e.assembly.Stats()
}

// DetectorConfig returns the active detector configuration.
func (e *Engine) DetectorConfig() conf.DetectorSettings {
	return e.settings.Detector
}

// UpdatePoolConfig sends new pool settings to the capture context.
// Out-of-bounds values are rejected here, before anything crosses the
// channel.
func (e *Engine) UpdatePoolConfig(pool conf.PoolSettings) error {
	env, err := e.endpoint.NewSetConfig(pool)
	if err != nil {
		return err
	}
	return e.sendCommand(env)
}

// SetTestSignal switches the capture side to a synthetic signal source.
func (e *Engine) SetTestSignal(signal conf.TestSignalSettings) error {
	env, err := e.endpoint.NewSetTestSignal(signal)
	if err != nil {
		return err
	}
	return e.sendCommand(env)
}

func (e *Engine) sendCommand(env *protocol.Envelope) error {
	if !e.ready.Load() {
		return errors.Newf("engine not initialized").
			Component("engine").
			Category(errors.CategoryState).
			Build()
	}
	select {
	case e.toCapture <- env:
		return nil
	default:
		return errors.Newf("command channel full").
			Component("engine").
			Category(errors.CategoryResource).
			Context("kind", env.Payload.Kind().String()).
			Build()
	}
}

// Shutdown asks the capture side to tear down and waits for it to finish.
// Remaining capture messages are drained so final statistics are visible
// after shutdown.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.ready.Load() {
		return nil
	}
	e.ready.Store(false)

	select {
	case e.toCapture <- e.endpoint.NewTeardown():
	default:
		// Channel saturated; fall back to cancellation.
		e.cancel()
	}

	select {
	case <-e.capture.done:
	case <-ctx.Done():
		e.cancel()
		<-e.capture.done
	}
	e.cancel()

	e.drainFromCapture()
	e.log.Info("engine shut down", "batches_consumed", e.batchesSeen)
	return nil
}
