package audio

// CaptureAssembly is a fixed-capacity circular sample buffer that decouples
// the small hardware batch cadence from the larger analysis-window cadence.
// The producer is never blocked: when the consumer falls behind, the oldest
// unconsumed samples are overwritten and counted as overflow.
type CaptureAssembly struct {
	ring       []float64
	writeIndex int
	windowSize int
	hopSize    int

	filled    int    // valid samples in the ring, up to windowSize
	pending   int    // new samples since the last extraction
	total     uint64 // samples ever appended
	overflows uint64 // samples overwritten before they could be analyzed
}

// AssemblyStats is a snapshot of assembly activity.
type AssemblyStats struct {
	TotalSamples uint64
	Overflows    uint64
}

// NewCaptureAssembly creates an assembly ring holding windowSize samples.
// A window becomes ready after hopSize new samples since the previous
// extraction.
func NewCaptureAssembly(windowSize, hopSize int) *CaptureAssembly {
	return &CaptureAssembly{
		ring:       make([]float64, windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
	}
}

// Append copies samples into the ring, overwriting the oldest data when the
// ring is full. It returns the number of unconsumed samples that were
// overwritten.
func (ca *CaptureAssembly) Append(samples []float64) int {
	overwritten := 0
	for _, s := range samples {
		ca.ring[ca.writeIndex] = s
		ca.writeIndex = (ca.writeIndex + 1) % ca.windowSize
		if ca.filled < ca.windowSize {
			ca.filled++
		}
		if ca.pending < ca.windowSize {
			ca.pending++
		} else {
			overwritten++
		}
	}
	ca.total += uint64(len(samples))
	ca.overflows += uint64(overwritten)
	return overwritten
}

// WindowReady reports whether a full window is available with at least
// hopSize new samples since the previous extraction.
func (ca *CaptureAssembly) WindowReady() bool {
	return ca.filled >= ca.windowSize && ca.pending >= ca.hopSize
}

// Window copies the most recent windowSize samples into dst in arrival
// order and clears the pending count, so the next window needs hopSize new
// samples. dst must hold windowSize samples. Cost is O(window size).
func (ca *CaptureAssembly) Window(dst []float64) bool {
	if len(dst) < ca.windowSize || ca.filled < ca.windowSize {
		return false
	}

	// The oldest sample sits at writeIndex once the ring has wrapped.
	n := copy(dst, ca.ring[ca.writeIndex:])
	copy(dst[n:], ca.ring[:ca.writeIndex])

	ca.pending = 0
	return true
}

// WindowSize returns the analysis window length in samples.
func (ca *CaptureAssembly) WindowSize() int {
	return ca.windowSize
}

// Stats returns a snapshot of assembly counters.
func (ca *CaptureAssembly) Stats() AssemblyStats {
	return AssemblyStats{
		TotalSamples: ca.total,
		Overflows:    ca.overflows,
	}
}
