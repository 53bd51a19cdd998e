package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/pitchtrack-go/internal/audio"
	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
	"github.com/tphakala/pitchtrack-go/internal/logging"
	"github.com/tphakala/pitchtrack-go/internal/observability/metrics"
	"github.com/tphakala/pitchtrack-go/internal/protocol"
)

// captureContext is the real-time side of the engine. It runs on a single
// goroutine that exclusively owns the buffer pool and the capture source;
// everything it shares with the host crosses the two message channels, so
// the hot path takes no locks and never blocks on the host.
type captureContext struct {
	settings conf.AudioSettings

	pool   *audio.BufferPool
	source audio.CaptureSource

	endpoint  *protocol.Endpoint
	toCapture <-chan *protocol.Envelope
	toHost    chan<- *protocol.Envelope

	batch          []float64
	batchInterval  time.Duration
	statusInterval time.Duration

	sequence  uint64
	dropped   uint64
	processed uint64

	log     *slog.Logger
	metrics *metrics.EngineMetrics
	done    chan struct{}
}

func newCaptureContext(
	settings *conf.Settings,
	source audio.CaptureSource,
	endpoint *protocol.Endpoint,
	toCapture <-chan *protocol.Envelope,
	toHost chan<- *protocol.Envelope,
	m *metrics.EngineMetrics,
) (*captureContext, error) {
	pool, err := audio.NewBufferPool(settings.Audio.BatchSize, settings.Pool, m)
	if err != nil {
		return nil, err
	}

	return &captureContext{
		settings:       settings.Audio,
		pool:           pool,
		source:         source,
		endpoint:       endpoint,
		toCapture:      toCapture,
		toHost:         toHost,
		batch:          make([]float64, settings.Audio.BatchSize),
		batchInterval:  time.Duration(settings.Audio.BatchSize) * time.Second / time.Duration(settings.Audio.SampleRate),
		statusInterval: time.Duration(settings.Pool.StatusInterval) * time.Millisecond,
		log:            logging.ForService("engine.capture"),
		metrics:        m,
		done:           make(chan struct{}),
	}, nil
}

// run drives the capture loop until teardown or context cancellation. It
// owns the goroutine; callers wait on done.
func (c *captureContext) run(ctx context.Context) {
	defer close(c.done)
	defer func() {
		if err := c.source.Stop(); err != nil {
			c.log.Error("failed to stop capture source", "error", err)
		}
	}()

	ticker := time.NewTicker(c.batchInterval)
	defer ticker.Stop()

	statusTicker := time.NewTicker(c.statusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("capture context canceled")
			return
		case env := <-c.toCapture:
			if c.handleCommand(env) {
				return
			}
		case <-statusTicker.C:
			c.sendStatus()
		case <-ticker.C:
			c.drainCommands()
			c.captureBatch()
		}
	}
}

// drainCommands applies all pending host commands before the next batch so
// configuration changes take effect at a batch boundary.
func (c *captureContext) drainCommands() {
	for {
		select {
		case env := <-c.toCapture:
			c.handleCommand(env)
		default:
			return
		}
	}
}

// handleCommand applies one host command. It returns true on teardown.
func (c *captureContext) handleCommand(env *protocol.Envelope) bool {
	if err := protocol.Validate(env, protocol.ToCapture); err != nil {
		c.log.Warn("dropping invalid command", "error", err)
		if c.metrics != nil {
			c.metrics.RecordProtocolDrop(protocol.ToCapture.String())
		}
		return false
	}
	if c.metrics != nil {
		c.metrics.RecordMessage(protocol.ToCapture.String(), env.Payload.Kind().String())
	}

	switch p := env.Payload.(type) {
	case *protocol.ReleaseBuffer:
		c.pool.Release(p.TakeBuffer())
	case protocol.SetConfig:
		if err := c.pool.Reconfigure(p.Pool); err != nil {
			c.reportError("config", err)
		}
	case protocol.SetTestSignal:
		c.swapTestSignal(p.Signal)
	case protocol.Teardown:
		c.log.Info("teardown received", "processed", c.processed, "dropped", c.dropped)
		c.sendStatus()
		return true
	default:
		c.log.Warn("unhandled command kind", "kind", env.Payload.Kind().String())
	}
	return false
}

// swapTestSignal replaces the current source with a synthetic generator.
func (c *captureContext) swapTestSignal(signal conf.TestSignalSettings) {
	replacement, err := audio.NewTestSignalSource(signal, c.settings.SampleRate)
	if err != nil {
		c.reportError("config", err)
		return
	}
	if err := replacement.Start(context.Background()); err != nil {
		c.reportError("capture", err)
		return
	}
	if err := c.source.Stop(); err != nil {
		c.log.Warn("failed to stop previous source", "error", err)
	}
	c.source = replacement
	c.log.Info("switched to test signal", "waveform", signal.Waveform,
		"frequency", signal.FrequencyHz)
}

// captureBatch moves one batch from the source into a pooled buffer and
// ships it to the host. Backpressure drops the batch rather than blocking.
func (c *captureContext) captureBatch() {
	n, err := c.source.ReadBatch(c.batch)
	if err != nil {
		c.reportError("capture", err)
		return
	}
	if n == 0 {
		return
	}

	buffer := c.pool.Acquire()
	buffer.CopyFrom(c.batch[:n])
	c.pool.MarkInFlight(buffer)

	c.sequence++
	env, err := c.endpoint.NewAudioDataBatch(buffer, n, c.sequence)
	if err != nil {
		// Construction failures keep the buffer on this side.
		c.pool.Release(buffer)
		c.reportError("protocol", err)
		return
	}

	select {
	case c.toHost <- env:
		c.processed++
	default:
		// Host is behind; reclaim the buffer immediately and count the loss.
		batch := env.Payload.(*protocol.AudioDataBatch)
		c.pool.Release(batch.TakeBuffer())
		c.dropped++
		if c.metrics != nil {
			c.metrics.RecordBatchDropped()
		}
	}
}

// sendStatus reports pool statistics to the host, best effort.
func (c *captureContext) sendStatus() {
	env := c.endpoint.NewStatus(c.pool.Stats(), c.dropped, c.processed)
	select {
	case c.toHost <- env:
	default:
		if c.metrics != nil {
			c.metrics.RecordProtocolDrop(protocol.ToHost.String())
		}
	}
}

// reportError surfaces a non-fatal error to the host, best effort.
func (c *captureContext) reportError(kind string, err error) {
	c.log.Error("capture-side error", "kind", kind, "error", err)

	var enhanced *errors.EnhancedError
	message := err.Error()
	if errors.As(err, &enhanced) {
		kind = string(enhanced.Category)
	}
	env, buildErr := c.endpoint.NewError(kind, message)
	if buildErr != nil {
		return
	}
	select {
	case c.toHost <- env:
	default:
	}
}
