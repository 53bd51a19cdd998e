package protocol

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/tphakala/pitchtrack-go/internal/audio"
	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

// Wire format: a fixed little-endian header followed by a per-kind payload
// section. Buffer-bearing payloads serialize their samples by value, so
// decoding produces a fresh buffer rather than the sender's instance.
const (
	wireMagic   uint32 = 0x50545231 // "PTR1"
	wireVersion byte   = 1

	maxWireStr = 1 << 12
)

// Marshal encodes an envelope for transport. Buffer payloads are read, not
// consumed; the sender still owns the buffer handle afterwards.
func Marshal(env *Envelope) ([]byte, error) {
	if env == nil || env.Payload == nil {
		return nil, errors.Newf("cannot marshal empty envelope").
			Component("protocol").
			Category(errors.CategoryProtocol).
			Build()
	}

	w := make([]byte, 0, 64)
	w = binary.LittleEndian.AppendUint32(w, wireMagic)
	w = append(w, wireVersion, byte(env.Direction), byte(env.Payload.Kind()))
	w = binary.LittleEndian.AppendUint64(w, env.ID)
	w = binary.LittleEndian.AppendUint64(w, uint64(env.Timestamp.UnixNano()))

	switch p := env.Payload.(type) {
	case SetConfig:
		w = appendInt(w, p.Pool.Size)
		w = appendInt(w, p.Pool.Timeout)
		w = appendInt(w, p.Pool.PauseThreshold)
		w = appendInt(w, p.Pool.StatusInterval)
	case SetTestSignal:
		w = appendString(w, p.Signal.Waveform)
		w = appendFloat(w, p.Signal.FrequencyHz)
		w = appendFloat(w, p.Signal.Amplitude)
		w = appendBool(w, p.Signal.Enabled)
	case *ReleaseBuffer:
		w = appendSamples(w, p.buffer)
	case Teardown:
		// No fields.
	case *AudioDataBatch:
		w = binary.LittleEndian.AppendUint64(w, p.SequenceID)
		w = appendInt(w, p.FrameCount)
		w = appendSamples(w, p.buffer)
	case Status:
		w = appendInt(w, p.Pool.Size)
		w = appendInt(w, p.Pool.Available)
		w = binary.LittleEndian.AppendUint64(w, p.Pool.Hits)
		w = binary.LittleEndian.AppendUint64(w, p.Pool.Misses)
		w = binary.LittleEndian.AppendUint64(w, p.Pool.Lost)
		w = binary.LittleEndian.AppendUint64(w, p.Pool.SlowAcquires)
		w = binary.LittleEndian.AppendUint64(w, uint64(p.Pool.AvgAcquireNanos))
		w = binary.LittleEndian.AppendUint64(w, p.DroppedCount)
		w = binary.LittleEndian.AppendUint64(w, p.ProcessedCount)
	case ErrorReport:
		w = appendString(w, p.ErrorKind)
		w = appendString(w, p.Message)
	default:
		return nil, errors.Newf("unknown payload kind %s", env.Payload.Kind()).
			Component("protocol").
			Category(errors.CategoryProtocol).
			Build()
	}

	return w, nil
}

// Unmarshal decodes one envelope. Malformed input and unknown kinds yield
// protocol errors; the caller drops the message and continues.
func Unmarshal(data []byte) (*Envelope, error) {
	r := &wireReader{data: data}

	magic := r.uint32()
	version := r.byte()
	direction := Direction(r.byte())
	kind := Kind(r.byte())
	id := r.uint64()
	nanos := int64(r.uint64())
	if r.failed || magic != wireMagic {
		return nil, wireErr("truncated or foreign header")
	}
	if version != wireVersion {
		return nil, wireErr("unsupported wire version")
	}

	env := &Envelope{
		Direction: direction,
		ID:        id,
		Timestamp: time.Unix(0, nanos),
	}

	switch kind {
	case KindSetConfig:
		p := SetConfig{Pool: conf.PoolSettings{
			Size:           r.int(),
			Timeout:        r.int(),
			PauseThreshold: r.int(),
			StatusInterval: r.int(),
		}}
		env.Payload = p
	case KindSetTestSignal:
		p := SetTestSignal{Signal: conf.TestSignalSettings{
			Waveform:    r.string(),
			FrequencyHz: r.float(),
			Amplitude:   r.float(),
			Enabled:     r.bool(),
		}}
		env.Payload = p
	case KindReleaseBuffer:
		env.Payload = &ReleaseBuffer{buffer: r.samples()}
	case KindTeardown:
		env.Payload = Teardown{}
	case KindAudioDataBatch:
		p := &AudioDataBatch{SequenceID: r.uint64()}
		p.FrameCount = r.int()
		p.buffer = r.samples()
		env.Payload = p
	case KindStatus:
		p := Status{Pool: audio.PoolStats{
			Size:      r.int(),
			Available: r.int(),
		}}
		p.Pool.Hits = r.uint64()
		p.Pool.Misses = r.uint64()
		p.Pool.Lost = r.uint64()
		p.Pool.SlowAcquires = r.uint64()
		p.Pool.AvgAcquireNanos = int64(r.uint64())
		p.DroppedCount = r.uint64()
		p.ProcessedCount = r.uint64()
		env.Payload = p
	case KindError:
		env.Payload = ErrorReport{
			ErrorKind: r.string(),
			Message:   r.string(),
		}
	default:
		return nil, errors.Newf("unknown payload tag %d", uint8(kind)).
			Component("protocol").
			Category(errors.CategoryProtocol).
			Context("direction", direction.String()).
			Build()
	}

	if r.failed {
		return nil, wireErr("truncated payload for kind " + kind.String())
	}
	if len(r.data) != r.pos {
		return nil, wireErr("trailing bytes after payload")
	}
	if err := Validate(env, kind.direction()); err != nil {
		return nil, err
	}
	return env, nil
}

func wireErr(msg string) error {
	return errors.Newf("%s", msg).
		Component("protocol").
		Category(errors.CategoryProtocol).
		Build()
}

func appendInt(w []byte, v int) []byte {
	return binary.LittleEndian.AppendUint64(w, uint64(int64(v)))
}

func appendFloat(w []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(w, math.Float64bits(v))
}

func appendBool(w []byte, v bool) []byte {
	if v {
		return append(w, 1)
	}
	return append(w, 0)
}

// appendString writes a length-prefixed string. Factories cap string
// fields at maxWireStr, so the truncation backstop is unreachable for
// envelopes built through them.
func appendString(w []byte, s string) []byte {
	if len(s) > maxWireStr {
		s = s[:maxWireStr]
	}
	w = binary.LittleEndian.AppendUint16(w, uint16(len(s)))
	return append(w, s...)
}

func appendSamples(w []byte, b *audio.Buffer) []byte {
	if b == nil {
		return binary.LittleEndian.AppendUint32(w, 0)
	}
	samples := b.Samples()
	w = binary.LittleEndian.AppendUint32(w, uint32(len(samples)))
	for _, s := range samples {
		w = binary.LittleEndian.AppendUint64(w, math.Float64bits(s))
	}
	return w
}

// wireReader walks the encoded bytes, latching a failure flag on the first
// short read so callers can check once at the end.
type wireReader struct {
	data   []byte
	pos    int
	failed bool
}

func (r *wireReader) take(n int) []byte {
	if r.failed || r.pos+n > len(r.data) {
		r.failed = true
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *wireReader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *wireReader) bool() bool {
	return r.byte() != 0
}

func (r *wireReader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *wireReader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *wireReader) int() int {
	return int(int64(r.uint64()))
}

func (r *wireReader) float() float64 {
	return math.Float64frombits(r.uint64())
}

func (r *wireReader) string() string {
	b := r.take(2)
	if b == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(b))
	s := r.take(n)
	if s == nil {
		return ""
	}
	return string(s)
}

// samples decodes a sample block into a fresh buffer outside any pool.
func (r *wireReader) samples() *audio.Buffer {
	n := int(r.uint32())
	if r.failed || 8*n > len(r.data)-r.pos {
		r.failed = true
		return nil
	}
	b := audio.NewFallbackBuffer(n)
	out := make([]float64, n)
	for i := range out {
		out[i] = r.float()
	}
	b.CopyFrom(out)
	return b
}
