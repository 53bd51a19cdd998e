// Package protocol defines the typed message envelopes exchanged between
// the capture context and the host context. The payload set is closed in
// each direction; envelopes are built through validating factories so a
// message that constructs at all is complete.
package protocol

import (
	"sync/atomic"
	"time"

	"github.com/tphakala/pitchtrack-go/internal/audio"
	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

// Direction identifies which context an envelope travels toward.
type Direction uint8

const (
	// ToCapture carries commands from the host into the capture context.
	ToCapture Direction = iota + 1
	// ToHost carries audio and status from the capture context to the host.
	ToHost
)

func (d Direction) String() string {
	switch d {
	case ToCapture:
		return "to-capture"
	case ToHost:
		return "to-host"
	default:
		return "unknown"
	}
}

// Kind is the variant tag of an envelope payload.
type Kind uint8

const (
	// Host to capture.
	KindSetConfig Kind = iota + 1
	KindSetTestSignal
	KindReleaseBuffer
	KindTeardown

	// Capture to host.
	KindAudioDataBatch
	KindStatus
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSetConfig:
		return "set-config"
	case KindSetTestSignal:
		return "set-test-signal"
	case KindReleaseBuffer:
		return "release-buffer"
	case KindTeardown:
		return "teardown"
	case KindAudioDataBatch:
		return "audio-data-batch"
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// direction returns the only direction a payload kind may travel.
func (k Kind) direction() Direction {
	switch k {
	case KindSetConfig, KindSetTestSignal, KindReleaseBuffer, KindTeardown:
		return ToCapture
	case KindAudioDataBatch, KindStatus, KindError:
		return ToHost
	default:
		return 0
	}
}

// Payload is the closed set of envelope contents. The unexported method
// keeps the set closed to this package.
type Payload interface {
	Kind() Kind
	payload()
}

// Envelope is one message on a context channel. ID is monotonic per
// direction, assigned by the sending Endpoint.
type Envelope struct {
	Direction Direction
	ID        uint64
	Timestamp time.Time
	Payload   Payload
}

// SetConfig requests new pool settings in the capture context. Out-of-range
// values never construct.
type SetConfig struct {
	Pool conf.PoolSettings
}

func (SetConfig) Kind() Kind { return KindSetConfig }
func (SetConfig) payload()   {}

// SetTestSignal switches the capture context to a synthetic signal source.
type SetTestSignal struct {
	Signal conf.TestSignalSettings
}

func (SetTestSignal) Kind() Kind { return KindSetTestSignal }
func (SetTestSignal) payload()   {}

// ReleaseBuffer returns a consumed audio buffer to the capture-side pool.
type ReleaseBuffer struct {
	buffer *audio.Buffer
}

func (*ReleaseBuffer) Kind() Kind { return KindReleaseBuffer }
func (*ReleaseBuffer) payload()   {}

// TakeBuffer moves the buffer out of the payload. The second call returns
// nil, so a buffer can never be extracted into two owners.
func (r *ReleaseBuffer) TakeBuffer() *audio.Buffer {
	b := r.buffer
	r.buffer = nil
	return b
}

// Teardown asks the capture context to stop producing and shut down.
type Teardown struct{}

func (Teardown) Kind() Kind { return KindTeardown }
func (Teardown) payload()   {}

// AudioDataBatch carries one filled buffer of captured samples to the host.
type AudioDataBatch struct {
	buffer     *audio.Buffer
	FrameCount int
	SequenceID uint64
}

func (*AudioDataBatch) Kind() Kind { return KindAudioDataBatch }
func (*AudioDataBatch) payload()   {}

// TakeBuffer moves the buffer out of the payload. The second call returns
// nil, so a buffer can never be extracted into two owners.
func (a *AudioDataBatch) TakeBuffer() *audio.Buffer {
	b := a.buffer
	a.buffer = nil
	return b
}

// Status reports capture-side statistics to the host.
type Status struct {
	Pool           audio.PoolStats
	DroppedCount   uint64
	ProcessedCount uint64
}

func (Status) Kind() Kind { return KindStatus }
func (Status) payload()   {}

// ErrorReport surfaces a non-fatal capture-side error to the host.
type ErrorReport struct {
	ErrorKind string
	Message   string
}

func (ErrorReport) Kind() Kind { return KindError }
func (ErrorReport) payload()   {}

// Endpoint builds validated envelopes for one side of the channel pair and
// stamps monotonic per-direction IDs.
type Endpoint struct {
	toCaptureID atomic.Uint64
	toHostID    atomic.Uint64
}

// NewEndpoint creates an envelope factory.
func NewEndpoint() *Endpoint {
	return &Endpoint{}
}

func (e *Endpoint) envelope(p Payload) *Envelope {
	direction := p.Kind().direction()
	var id uint64
	switch direction {
	case ToCapture:
		id = e.toCaptureID.Add(1)
	case ToHost:
		id = e.toHostID.Add(1)
	}
	return &Envelope{
		Direction: direction,
		ID:        id,
		Timestamp: time.Now(),
		Payload:   p,
	}
}

// NewSetConfig builds a pool reconfiguration command. Settings outside the
// documented bounds are rejected, never clamped.
func (e *Endpoint) NewSetConfig(pool conf.PoolSettings) (*Envelope, error) {
	if err := conf.ValidatePoolSettings(&pool); err != nil {
		return nil, err
	}
	return e.envelope(SetConfig{Pool: pool}), nil
}

// NewSetTestSignal builds a test-signal switch command.
func (e *Endpoint) NewSetTestSignal(signal conf.TestSignalSettings) (*Envelope, error) {
	if err := conf.ValidateTestSignalSettings(&signal); err != nil {
		return nil, err
	}
	return e.envelope(SetTestSignal{Signal: signal}), nil
}

// NewReleaseBuffer builds a buffer-return message, consuming the buffer.
func (e *Endpoint) NewReleaseBuffer(buffer *audio.Buffer) (*Envelope, error) {
	if buffer == nil {
		return nil, errors.Newf("release requires a buffer").
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("kind", KindReleaseBuffer.String()).
			Build()
	}
	return e.envelope(&ReleaseBuffer{buffer: buffer}), nil
}

// NewTeardown builds a shutdown command.
func (e *Endpoint) NewTeardown() *Envelope {
	return e.envelope(Teardown{})
}

// NewAudioDataBatch builds an audio batch message, consuming the buffer.
// The frame count must describe the buffer's valid samples.
func (e *Endpoint) NewAudioDataBatch(buffer *audio.Buffer, frameCount int, sequenceID uint64) (*Envelope, error) {
	if buffer == nil {
		return nil, errors.Newf("audio batch requires a buffer").
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("kind", KindAudioDataBatch.String()).
			Build()
	}
	if frameCount <= 0 || frameCount > buffer.Len() {
		return nil, errors.Newf("invalid frame count %d for buffer holding %d samples", frameCount, buffer.Len()).
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("kind", KindAudioDataBatch.String()).
			Build()
	}
	return e.envelope(&AudioDataBatch{
		buffer:     buffer,
		FrameCount: frameCount,
		SequenceID: sequenceID,
	}), nil
}

// NewStatus builds a statistics report.
func (e *Endpoint) NewStatus(pool audio.PoolStats, dropped, processed uint64) *Envelope {
	return e.envelope(Status{
		Pool:           pool,
		DroppedCount:   dropped,
		ProcessedCount: processed,
	})
}

// NewError builds a non-fatal error report. Fields beyond the wire string
// limit are rejected here so every constructible report survives a codec
// round trip intact.
func (e *Endpoint) NewError(errorKind, message string) (*Envelope, error) {
	if errorKind == "" || message == "" {
		return nil, errors.Newf("error report requires a kind and a message").
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("kind", KindError.String()).
			Build()
	}
	if len(errorKind) > maxWireStr || len(message) > maxWireStr {
		return nil, errors.Newf("error report field exceeds %d bytes", maxWireStr).
			Component("protocol").
			Category(errors.CategoryValidation).
			Context("kind", KindError.String()).
			Build()
	}
	return e.envelope(ErrorReport{ErrorKind: errorKind, Message: message}), nil
}

// Validate checks a received envelope against the closed payload set for
// the expected direction. Failures are non-fatal protocol errors; the
// caller drops the message and continues.
func Validate(env *Envelope, expected Direction) error {
	if env == nil || env.Payload == nil {
		return errors.Newf("empty envelope").
			Component("protocol").
			Category(errors.CategoryProtocol).
			Build()
	}
	kind := env.Payload.Kind()
	if kind.direction() == 0 {
		return errors.Newf("unknown payload kind %d", uint8(kind)).
			Component("protocol").
			Category(errors.CategoryProtocol).
			Context("direction", env.Direction.String()).
			Build()
	}
	if env.Direction != expected || kind.direction() != expected {
		return errors.Newf("payload %s not valid for direction %s", kind, expected).
			Component("protocol").
			Category(errors.CategoryProtocol).
			Build()
	}
	return nil
}
