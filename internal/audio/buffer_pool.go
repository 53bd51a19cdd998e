package audio

import (
	"log/slog"
	"time"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
	"github.com/tphakala/pitchtrack-go/internal/logging"
	"github.com/tphakala/pitchtrack-go/internal/observability/metrics"
)

// BufferPool owns a bounded set of fixed-size sample buffers. All pool
// operations run on the single goroutine that owns the pool; buffers cross
// to other contexts only through message transfer, so the pool needs no
// locking.
//
// Acquire never blocks: when the pool is empty it first sweeps in-flight
// buffers past the reclamation timeout, and failing that allocates an
// ad-hoc fallback buffer outside the pool, counted as a miss.
type BufferPool struct {
	bufferSize     int
	timeout        time.Duration
	pauseThreshold time.Duration

	free []*Buffer // LIFO so a released buffer is the next one acquired
	all  []*Buffer // every pooled buffer, for the reclamation sweep

	hits         uint64
	misses       uint64
	lost         uint64
	slowAcquires uint64
	acquires     uint64
	acquireNanos int64

	nextSequence uint64

	log     *slog.Logger
	metrics *metrics.EngineMetrics
}

// PoolStats is a point-in-time snapshot of pool behavior.
type PoolStats struct {
	Size            int
	Available       int
	Hits            uint64
	Misses          uint64 // fallback allocations
	Lost            uint64 // timeout reclamations
	SlowAcquires    uint64 // acquisitions above the pause-detection threshold
	AvgAcquireNanos int64
}

// HitRate returns the fraction of acquisitions served from the pool.
func (s PoolStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewBufferPool creates a pool of size buffers, each holding bufferSize
// samples. The size, timeout and pause-threshold bounds are validated and
// rejected when out of range, never clamped.
func NewBufferPool(bufferSize int, settings conf.PoolSettings, m *metrics.EngineMetrics) (*BufferPool, error) {
	if bufferSize <= 0 {
		return nil, errors.Newf("invalid buffer size: %d, must be greater than 0", bufferSize).
			Component("audio").
			Category(errors.CategoryValidation).
			Context("operation", "create_buffer_pool").
			Build()
	}
	if err := conf.ValidatePoolSettings(&settings); err != nil {
		return nil, err
	}

	p := &BufferPool{
		bufferSize:     bufferSize,
		timeout:        time.Duration(settings.Timeout) * time.Millisecond,
		pauseThreshold: time.Duration(settings.PauseThreshold) * time.Millisecond,
		free:           make([]*Buffer, 0, settings.Size),
		all:            make([]*Buffer, 0, settings.Size),
		log:            logging.ForService("audio.pool"),
		metrics:        m,
	}

	for range settings.Size {
		b := newPooledBuffer(bufferSize)
		p.all = append(p.all, b)
		p.free = append(p.free, b)
	}

	return p, nil
}

// Acquire returns a buffer for the caller to fill. The returned buffer is
// either a pooled buffer (hit) or, when the pool is exhausted even after a
// reclamation sweep, a fallback allocation (miss). Acquire never blocks.
func (p *BufferPool) Acquire() *Buffer {
	start := time.Now()
	b := p.popFree()
	if b == nil {
		// Pool exhausted: reclaim overdue in-flight buffers and retry.
		p.reclaimExpired(start)
		b = p.popFree()
	}

	result := "hit"
	if b == nil {
		// Still empty, the peer holds everything. Allocate outside the
		// pool rather than blocking the capture path.
		b = NewFallbackBuffer(p.bufferSize)
		p.misses++
		result = "fallback"
		p.log.Warn("pool exhausted, using fallback allocation",
			"size", len(p.all), "misses", p.misses)
	} else {
		p.hits++
	}

	p.nextSequence++
	b.sequence = p.nextSequence
	b.length = 0
	b.state = BufferFree

	elapsed := time.Since(start)
	p.acquires++
	p.acquireNanos += elapsed.Nanoseconds()
	if elapsed > p.pauseThreshold {
		p.slowAcquires++
		if p.metrics != nil {
			p.metrics.RecordPoolSlowAcquire()
		}
		p.log.Warn("slow buffer acquisition",
			"elapsed", elapsed, "threshold", p.pauseThreshold)
	}
	if p.metrics != nil {
		p.metrics.RecordPoolAcquire(result, elapsed.Seconds())
		p.metrics.UpdatePoolGauges(len(p.all), len(p.free))
	}

	return b
}

// Release returns a buffer to the free list. Buffers whose capacity does
// not match the pool's buffer size (fallback allocations included) are
// rejected with a log line and left to the garbage collector.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil {
		return
	}
	if !b.pooled || b.Cap() != p.bufferSize {
		p.log.Debug("rejecting foreign buffer on release",
			"capacity", b.Cap(), "expected", p.bufferSize, "pooled", b.pooled)
		return
	}
	if b.state == BufferFree && p.inFreeList(b) {
		p.log.Warn("duplicate release ignored", "sequence", b.sequence)
		return
	}
	if b.state == BufferLost {
		// Already replaced by the reclamation sweep; the late return is
		// dropped so the pool never exceeds its configured size.
		p.log.Debug("late return of reclaimed buffer dropped", "sequence", b.sequence)
		return
	}

	b.state = BufferFree
	b.length = 0
	p.free = append(p.free, b)
	if p.metrics != nil {
		p.metrics.UpdatePoolGauges(len(p.all), len(p.free))
	}
}

// MarkInFlight stamps the transfer time on a buffer as it is placed into an
// outbound message. The reclamation sweep uses the stamp to compute age.
func (p *BufferPool) MarkInFlight(b *Buffer) {
	if b == nil {
		return
	}
	b.state = BufferInFlight
	b.inFlightSince = time.Now()
}

// ReclaimExpired force-reclaims in-flight buffers older than the pool
// timeout. Each reclaimed buffer is counted as lost; its memory is
// abandoned to the stalled holder and a fresh buffer takes its slot so the
// pool's reclaimable set never exceeds the configured size.
func (p *BufferPool) ReclaimExpired() int {
	return p.reclaimExpired(time.Now())
}

func (p *BufferPool) reclaimExpired(now time.Time) int {
	reclaimed := 0
	for i, b := range p.all {
		if b.state != BufferInFlight {
			continue
		}
		if now.Sub(b.inFlightSince) < p.timeout {
			continue
		}

		b.state = BufferLost
		replacement := newPooledBuffer(p.bufferSize)
		p.all[i] = replacement
		p.free = append(p.free, replacement)
		p.lost++
		reclaimed++
		p.log.Warn("reclaimed in-flight buffer after timeout",
			"sequence", b.sequence, "age", now.Sub(b.inFlightSince), "timeout", p.timeout)
	}

	if reclaimed > 0 && p.metrics != nil {
		p.metrics.RecordPoolLost(reclaimed)
		p.metrics.UpdatePoolGauges(len(p.all), len(p.free))
	}
	return reclaimed
}

// Reconfigure applies new pool settings, rejecting out-of-bounds values.
// Growing adds free buffers; shrinking drops free buffers first and lets
// in-flight buffers leave the pool as they return.
func (p *BufferPool) Reconfigure(settings conf.PoolSettings) error {
	if err := conf.ValidatePoolSettings(&settings); err != nil {
		return err
	}

	p.timeout = time.Duration(settings.Timeout) * time.Millisecond
	p.pauseThreshold = time.Duration(settings.PauseThreshold) * time.Millisecond

	for len(p.all) < settings.Size {
		b := newPooledBuffer(p.bufferSize)
		p.all = append(p.all, b)
		p.free = append(p.free, b)
	}
	for len(p.all) > settings.Size && len(p.free) > 0 {
		victim := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		p.removeFromAll(victim)
	}

	if p.metrics != nil {
		p.metrics.UpdatePoolGauges(len(p.all), len(p.free))
	}
	p.log.Info("pool reconfigured",
		"size", len(p.all), "timeout_ms", settings.Timeout,
		"pause_threshold_ms", settings.PauseThreshold)
	return nil
}

// Stats returns the current pool statistics.
func (p *BufferPool) Stats() PoolStats {
	avg := int64(0)
	if p.acquires > 0 {
		avg = p.acquireNanos / int64(p.acquires)
	}
	return PoolStats{
		Size:            len(p.all),
		Available:       len(p.free),
		Hits:            p.hits,
		Misses:          p.misses,
		Lost:            p.lost,
		SlowAcquires:    p.slowAcquires,
		AvgAcquireNanos: avg,
	}
}

// BufferSize returns the per-buffer capacity in samples.
func (p *BufferPool) BufferSize() int {
	return p.bufferSize
}

func (p *BufferPool) popFree() *Buffer {
	if len(p.free) == 0 {
		return nil
	}
	b := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return b
}

func (p *BufferPool) inFreeList(b *Buffer) bool {
	for _, fb := range p.free {
		if fb == b {
			return true
		}
	}
	return false
}

func (p *BufferPool) removeFromAll(b *Buffer) {
	for i, pb := range p.all {
		if pb == b {
			p.all[i] = p.all[len(p.all)-1]
			p.all = p.all[:len(p.all)-1]
			return
		}
	}
}
