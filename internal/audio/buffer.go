// Package audio provides the capture side of the engine: reusable sample
// buffers with single-holder ownership, the bounded buffer pool, the capture
// assembly ring, level metering and capture sources.
package audio

import (
	"time"
)

// BufferState tracks who currently holds a pooled buffer.
type BufferState int32

const (
	// BufferFree means the buffer sits in the pool's free list or is held
	// by the pool owner between Acquire and transfer.
	BufferFree BufferState = iota
	// BufferInFlight means the buffer has been transferred across the
	// context boundary and is awaiting return.
	BufferInFlight
	// BufferLost marks a buffer that was force-reclaimed after its peer
	// failed to return it within the pool timeout.
	BufferLost
)

func (s BufferState) String() string {
	switch s {
	case BufferFree:
		return "free"
	case BufferInFlight:
		return "in-flight"
	case BufferLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Buffer is a fixed-capacity sample buffer owned by exactly one side at a
// time. Ownership moves with the buffer: a sender places it into a message
// and must not touch it again until it comes back through the pool.
type Buffer struct {
	data   []float64
	length int

	state         BufferState
	pooled        bool // false for ad-hoc fallback allocations
	inFlightSince time.Time
	sequence      uint64
}

// NewFallbackBuffer creates an ad-hoc buffer outside any pool. Fallback
// buffers are not eligible for pool-return bookkeeping.
func NewFallbackBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]float64, capacity)}
}

// newPooledBuffer creates a buffer owned by a pool.
func newPooledBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]float64, capacity), pooled: true}
}

// Samples returns the valid portion of the buffer.
func (b *Buffer) Samples() []float64 {
	return b.data[:b.length]
}

// Len returns the number of valid samples.
func (b *Buffer) Len() int {
	return b.length
}

// Cap returns the buffer capacity in samples.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// CopyFrom fills the buffer from src, truncating at capacity. It returns
// the number of samples copied.
func (b *Buffer) CopyFrom(src []float64) int {
	n := copy(b.data[:cap(b.data)], src)
	b.length = n
	return n
}

// SetLength marks the first n samples as valid.
func (b *Buffer) SetLength(n int) {
	if n < 0 {
		n = 0
	}
	if n > cap(b.data) {
		n = cap(b.data)
	}
	b.length = n
}

// State returns the buffer's current ownership state.
func (b *Buffer) State() BufferState {
	return b.state
}

// Pooled reports whether the buffer belongs to a pool.
func (b *Buffer) Pooled() bool {
	return b.pooled
}

// Sequence returns the sequence number stamped at the last acquisition.
func (b *Buffer) Sequence() uint64 {
	return b.sequence
}

// InFlightFor returns how long the buffer has been in flight at now.
// Returns zero for buffers that are not in flight.
func (b *Buffer) InFlightFor(now time.Time) time.Duration {
	if b.state != BufferInFlight {
		return 0
	}
	return now.Sub(b.inFlightSince)
}
