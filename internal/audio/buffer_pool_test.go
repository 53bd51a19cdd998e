package audio

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
)

func poolSettings(size int) conf.PoolSettings {
	return conf.PoolSettings{
		Size:           size,
		Timeout:        2000,
		PauseThreshold: 50,
		StatusInterval: 1000,
	}
}

func TestNewBufferPool_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		bufferSize int
		settings   conf.PoolSettings
		wantErr    bool
	}{
		{"valid", 128, poolSettings(8), false},
		{"minimum size", 128, poolSettings(conf.PoolSizeMin), false},
		{"maximum size", 128, poolSettings(conf.PoolSizeMax), false},
		{"size below minimum", 128, poolSettings(conf.PoolSizeMin - 1), true},
		{"size above maximum", 128, poolSettings(conf.PoolSizeMax + 1), true},
		{"zero buffer size", 0, poolSettings(8), true},
		{"negative buffer size", -1, poolSettings(8), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := NewBufferPool(tt.bufferSize, tt.settings, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCategory(err, errors.CategoryValidation),
					"expected a validation error, got: %v", err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tt.settings.Size, p.Stats().Size)
			assert.Equal(t, tt.settings.Size, p.Stats().Available)
		})
	}
}

func TestBufferPool_ReleaseThenAcquireReturnsSameBuffer(t *testing.T) {
	t.Parallel()

	// The identity property must hold at every legal pool size.
	for _, size := range []int{conf.PoolSizeMin, 8, 16, conf.PoolSizeMax} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			t.Parallel()
			p, err := NewBufferPool(256, poolSettings(size), nil)
			require.NoError(t, err)

			b := p.Acquire()
			require.NotNil(t, b)
			p.Release(b)

			again := p.Acquire()
			assert.Same(t, b, again, "free list must be LIFO")
		})
	}
}

func TestBufferPool_FallbackOnExhaustion(t *testing.T) {
	t.Parallel()

	p, err := NewBufferPool(128, poolSettings(4), nil)
	require.NoError(t, err)

	held := make([]*Buffer, 0, 4)
	for range 4 {
		b := p.Acquire()
		require.True(t, b.Pooled())
		held = append(held, b)
	}

	// Pool is empty and nothing is overdue, so the next acquisition must
	// come from outside the pool without blocking.
	fallback := p.Acquire()
	require.NotNil(t, fallback)
	assert.False(t, fallback.Pooled())
	assert.Equal(t, 128, fallback.Cap())

	stats := p.Stats()
	assert.Equal(t, uint64(4), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 4, stats.Size, "fallbacks must not grow the pool")
	assert.InDelta(t, 0.8, stats.HitRate(), 1e-9)

	// Releasing a fallback buffer must not enter the free list.
	p.Release(fallback)
	assert.Equal(t, 0, p.Stats().Available)

	for _, b := range held {
		p.Release(b)
	}
	assert.Equal(t, 4, p.Stats().Available)
}

func TestBufferPool_ReleaseRejectsSizeMismatch(t *testing.T) {
	t.Parallel()

	p, err := NewBufferPool(128, poolSettings(4), nil)
	require.NoError(t, err)

	foreign := newPooledBuffer(256)
	p.Release(foreign)
	assert.Equal(t, 4, p.Stats().Available, "mismatched buffer must not enter the pool")
}

func TestBufferPool_DuplicateReleaseIgnored(t *testing.T) {
	t.Parallel()

	p, err := NewBufferPool(64, poolSettings(4), nil)
	require.NoError(t, err)

	b := p.Acquire()
	p.Release(b)
	p.Release(b)
	assert.Equal(t, 4, p.Stats().Available)
}

func TestBufferPool_TimeoutReclaimsExactlyOne(t *testing.T) {
	t.Parallel()

	p, err := NewBufferPool(64, poolSettings(4), nil)
	require.NoError(t, err)

	overdue := p.Acquire()
	p.MarkInFlight(overdue)
	// Backdate the transfer stamp past the timeout instead of sleeping.
	overdue.inFlightSince = time.Now().Add(-3 * time.Second)

	onTime := p.Acquire()
	p.MarkInFlight(onTime)

	reclaimed := p.ReclaimExpired()
	assert.Equal(t, 1, reclaimed)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Lost)
	assert.Equal(t, 4, stats.Size, "replacement keeps the pool at its configured size")
	assert.Equal(t, 3, stats.Available, "two still free plus the replacement")
	assert.Equal(t, BufferLost, overdue.State())
	assert.Equal(t, BufferInFlight, onTime.State())
}

func TestBufferPool_LateReturnOfReclaimedBufferDropped(t *testing.T) {
	t.Parallel()

	p, err := NewBufferPool(64, poolSettings(4), nil)
	require.NoError(t, err)

	b := p.Acquire()
	p.MarkInFlight(b)
	b.inFlightSince = time.Now().Add(-time.Minute)
	require.Equal(t, 1, p.ReclaimExpired())

	available := p.Stats().Available
	p.Release(b)
	assert.Equal(t, available, p.Stats().Available,
		"late return must not push the pool past its configured size")
}

func TestBufferPool_ReclaimableSetNeverExceedsSize(t *testing.T) {
	t.Parallel()

	const size = 4
	p, err := NewBufferPool(32, poolSettings(size), nil)
	require.NoError(t, err)

	// Drain the pool past its size with overdue holders, reclaim, repeat.
	// The set of pooled buffers must stay bounded throughout.
	for range 10 {
		held := make([]*Buffer, 0, size+2)
		for range size + 2 {
			b := p.Acquire()
			p.MarkInFlight(b)
			b.inFlightSince = time.Now().Add(-time.Hour)
			held = append(held, b)
		}
		p.ReclaimExpired()
		for _, b := range held {
			p.Release(b)
		}
		assert.LessOrEqual(t, p.Stats().Available, size)
		assert.Equal(t, size, p.Stats().Size)
	}
}

func TestBufferPool_Reconfigure(t *testing.T) {
	t.Parallel()

	p, err := NewBufferPool(64, poolSettings(4), nil)
	require.NoError(t, err)

	require.NoError(t, p.Reconfigure(poolSettings(8)))
	assert.Equal(t, 8, p.Stats().Size)
	assert.Equal(t, 8, p.Stats().Available)

	require.NoError(t, p.Reconfigure(poolSettings(4)))
	assert.Equal(t, 4, p.Stats().Size)

	err = p.Reconfigure(poolSettings(conf.PoolSizeMax + 1))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
	assert.Equal(t, 4, p.Stats().Size, "rejected reconfigure must not change the pool")
}

func TestBufferPool_AcquireResetsBuffer(t *testing.T) {
	t.Parallel()

	p, err := NewBufferPool(16, poolSettings(4), nil)
	require.NoError(t, err)

	b := p.Acquire()
	b.CopyFrom([]float64{1, 2, 3})
	p.MarkInFlight(b)
	p.Release(b)

	again := p.Acquire()
	require.Same(t, b, again)
	assert.Equal(t, 0, again.Len())
	assert.Equal(t, BufferFree, again.State())
}
