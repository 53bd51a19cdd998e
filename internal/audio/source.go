package audio

import "context"

// CaptureSource produces batches of mono float64 samples. Implementations
// are a live hardware device or a deterministic test-signal generator.
type CaptureSource interface {
	// Start begins sample production. Blocking setup respects ctx.
	Start(ctx context.Context) error

	// ReadBatch fills dst with up to len(dst) samples and returns the
	// number written. It returns 0 when no samples are available yet.
	ReadBatch(dst []float64) (int, error)

	// Stop ends sample production and releases device resources.
	Stop() error

	// Name identifies the source in log records.
	Name() string
}
