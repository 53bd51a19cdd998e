package analysis

import (
	"fmt"
	"os"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/pitchtrack-go/internal/audio"
	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/errors"
	"github.com/tphakala/pitchtrack-go/internal/logging"
	"github.com/tphakala/pitchtrack-go/internal/pitch"
	"github.com/tphakala/pitchtrack-go/internal/smoother"
)

// windowResult is one analyzed window of an offline run.
type windowResult struct {
	offset   time.Duration
	level    audio.Level
	estimate pitch.Estimate
}

// FileAnalysis analyzes a WAV file offline, window by window, using the
// same detector and smoothing as the live pipeline. Batch smoothing starts
// from a reset state so repeated runs produce identical output.
func FileAnalysis(settings *conf.Settings, path string) error {
	log := logging.ForService("analysis.file")

	samples, sampleRate, err := readWavFile(path)
	if err != nil {
		return err
	}
	log.Info("loaded audio file", "path", path,
		"samples", len(samples), "samplerate", sampleRate)

	detector, err := pitch.New(settings.Detector, sampleRate, settings.Audio.WindowSize)
	if err != nil {
		return err
	}
	pitchSmoother, err := smoother.New(settings.Smoother.Pitch)
	if err != nil {
		return err
	}
	rmsSmoother, err := smoother.New(settings.Smoother.Volume)
	if err != nil {
		return err
	}

	windowSize := settings.Audio.WindowSize
	hopSize := settings.Audio.HopSize
	if len(samples) < windowSize {
		return errors.Newf("file holds %d samples, need at least one %d-sample window",
			len(samples), windowSize).
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}

	var results []windowResult
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		window := samples[start : start+windowSize]
		estimate, err := detector.Estimate(window)
		if err != nil {
			return err
		}
		results = append(results, windowResult{
			offset:   time.Duration(start) * time.Second / time.Duration(sampleRate),
			level:    audio.MeasureLevel(window),
			estimate: estimate,
		})
	}

	// Smooth the detected frequency track and the level track as whole
	// series, mirroring the live pipeline's per-window updates.
	frequencies := make([]float64, 0, len(results))
	for i := range results {
		if results[i].estimate.Detected {
			frequencies = append(frequencies, results[i].estimate.FrequencyHz)
		}
	}
	smoothedFreq := make([]float64, len(frequencies))
	pitchSmoother.Apply(smoothedFreq, frequencies)

	rmsTrack := make([]float64, len(results))
	for i := range results {
		rmsTrack[i] = results[i].level.RMS
	}
	smoothedRMS := make([]float64, len(rmsTrack))
	rmsSmoother.Apply(smoothedRMS, rmsTrack)

	detections := 0
	freqIndex := 0
	for i := range results {
		r := &results[i]
		if !r.estimate.Detected {
			continue
		}
		fmt.Printf("%8s  %7.2f Hz  clarity %.2f  rms %.3f\n",
			r.offset.Truncate(time.Millisecond),
			smoothedFreq[freqIndex], r.estimate.Clarity, smoothedRMS[i])
		freqIndex++
		detections++
	}

	fmt.Printf("Analyzed %d windows, pitch detected in %d\n", len(results), detections)
	return nil
}

// readWavFile decodes a WAV file into normalized mono float64 samples.
func readWavFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close() //nolint:errcheck

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, errors.Newf("not a valid WAV file: %s", path).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Build()
	}

	var buf *gaudio.IntBuffer
	buf, err = decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, errors.Newf("file reports %d channels", channels).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Build()
	}

	scale := float64(int64(1) << (decoder.BitDepth - 1))
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := range frames {
		// Average the channels down to mono.
		sum := 0
		for ch := range channels {
			sum += buf.Data[i*channels+ch]
		}
		samples[i] = float64(sum) / float64(channels) / scale
	}

	return samples, buf.Format.SampleRate, nil
}
