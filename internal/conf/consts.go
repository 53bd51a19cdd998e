// conf/consts.go hard coded constants
package conf

const (
	SampleRate  = 48000 // Sample rate of captured audio in Hz
	BitDepth    = 16    // Bit depth of the capture device format
	NumChannels = 1     // Number of capture channels

	// Configuration bounds, enforced by ValidateSettings. Out-of-bounds
	// values are rejected, never clamped.
	PoolSizeMin         = 4
	PoolSizeMax         = 64
	PoolTimeoutMsMin    = 100
	PoolTimeoutMsMax    = 30000
	PauseThresholdMsMin = 1
	PauseThresholdMsMax = 1000

	// Analysis window bounds in samples.
	WindowSizeMin = 256
	WindowSizeMax = 8192
)
