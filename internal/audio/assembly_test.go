package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureAssembly_NotReadyUntilWindowFilled(t *testing.T) {
	t.Parallel()

	ca := NewCaptureAssembly(8, 4)
	assert.False(t, ca.WindowReady())

	ca.Append([]float64{1, 2, 3, 4, 5, 6, 7})
	assert.False(t, ca.WindowReady(), "seven of eight samples is not a window")

	ca.Append([]float64{8})
	assert.True(t, ca.WindowReady())
}

func TestCaptureAssembly_WindowIsOldestFirst(t *testing.T) {
	t.Parallel()

	ca := NewCaptureAssembly(4, 2)
	ca.Append([]float64{1, 2, 3, 4})

	dst := make([]float64, 4)
	require.True(t, ca.Window(dst))
	assert.Equal(t, []float64{1, 2, 3, 4}, dst)

	// Two more samples wrap the ring; the window slides forward.
	ca.Append([]float64{5, 6})
	require.True(t, ca.WindowReady())
	require.True(t, ca.Window(dst))
	assert.Equal(t, []float64{3, 4, 5, 6}, dst)
}

func TestCaptureAssembly_HopGatesReadiness(t *testing.T) {
	t.Parallel()

	ca := NewCaptureAssembly(8, 4)
	ca.Append(make([]float64, 8))

	dst := make([]float64, 8)
	require.True(t, ca.Window(dst))
	assert.False(t, ca.WindowReady(), "extraction consumes the pending count")

	ca.Append(make([]float64, 3))
	assert.False(t, ca.WindowReady(), "three new samples is less than the hop")

	ca.Append(make([]float64, 1))
	assert.True(t, ca.WindowReady())
}

func TestCaptureAssembly_OverflowCountsOverwrittenSamples(t *testing.T) {
	t.Parallel()

	ca := NewCaptureAssembly(4, 2)
	overwritten := ca.Append([]float64{1, 2, 3, 4})
	assert.Equal(t, 0, overwritten)

	// Ring and pending count are both saturated; everything further
	// overwrites unconsumed data.
	overwritten = ca.Append([]float64{5, 6, 7})
	assert.Equal(t, 3, overwritten)

	stats := ca.Stats()
	assert.Equal(t, uint64(7), stats.TotalSamples)
	assert.Equal(t, uint64(3), stats.Overflows)

	// The window still holds the most recent four samples in order.
	dst := make([]float64, 4)
	require.True(t, ca.Window(dst))
	assert.Equal(t, []float64{4, 5, 6, 7}, dst)
}

func TestCaptureAssembly_WindowRejectsShortDst(t *testing.T) {
	t.Parallel()

	ca := NewCaptureAssembly(8, 4)
	ca.Append(make([]float64, 8))
	assert.False(t, ca.Window(make([]float64, 7)))
}
