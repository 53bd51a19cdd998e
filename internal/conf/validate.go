// conf/validate.go settings validation
package conf

import (
	"fmt"

	"github.com/tphakala/pitchtrack-go/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. Out-of-bounds
// values are rejected as errors, never clamped.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := ValidateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := ValidatePoolSettings(&settings.Pool); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := ValidateDetectorSettings(&settings.Detector, settings.Audio.SampleRate); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := ValidateSmootherSettings(&settings.Smoother.Pitch); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("smoother.pitch: %v", err))
	}
	if err := ValidateSmootherSettings(&settings.Smoother.Volume); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("smoother.volume: %v", err))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// ValidateAudioSettings validates capture and windowing parameters.
func ValidateAudioSettings(settings *AudioSettings) error {
	if settings.SampleRate <= 0 {
		return validationErr("invalid sample rate: %d, must be greater than 0", settings.SampleRate)
	}
	if settings.BatchSize <= 0 {
		return validationErr("invalid batch size: %d, must be greater than 0", settings.BatchSize)
	}
	if settings.WindowSize < WindowSizeMin || settings.WindowSize > WindowSizeMax {
		return validationErr("invalid window size: %d, must be in [%d,%d]",
			settings.WindowSize, WindowSizeMin, WindowSizeMax)
	}
	if settings.HopSize <= 0 || settings.HopSize > settings.WindowSize {
		return validationErr("invalid hop size: %d, must be in [1,%d]",
			settings.HopSize, settings.WindowSize)
	}
	if settings.BatchSize > settings.WindowSize {
		return validationErr("batch size %d exceeds window size %d",
			settings.BatchSize, settings.WindowSize)
	}
	if err := ValidateTestSignalSettings(&settings.TestSignal); err != nil {
		return err
	}
	return nil
}

// ValidateTestSignalSettings validates synthetic signal parameters.
func ValidateTestSignalSettings(settings *TestSignalSettings) error {
	switch settings.Waveform {
	case "sine", "square", "triangle", "noise":
	default:
		return validationErr("invalid test signal waveform: %q", settings.Waveform)
	}
	if settings.FrequencyHz <= 0 {
		return validationErr("invalid test signal frequency: %g, must be greater than 0",
			settings.FrequencyHz)
	}
	if settings.Amplitude < 0 || settings.Amplitude > 1 {
		return validationErr("invalid test signal amplitude: %g, must be in [0,1]",
			settings.Amplitude)
	}
	return nil
}

// ValidatePoolSettings validates buffer pool bounds.
func ValidatePoolSettings(settings *PoolSettings) error {
	if settings.Size < PoolSizeMin || settings.Size > PoolSizeMax {
		return validationErr("invalid pool size: %d, must be in [%d,%d]",
			settings.Size, PoolSizeMin, PoolSizeMax)
	}
	if settings.Timeout < PoolTimeoutMsMin || settings.Timeout > PoolTimeoutMsMax {
		return validationErr("invalid pool timeout: %d ms, must be in [%d,%d]",
			settings.Timeout, PoolTimeoutMsMin, PoolTimeoutMsMax)
	}
	if settings.PauseThreshold < PauseThresholdMsMin || settings.PauseThreshold > PauseThresholdMsMax {
		return validationErr("invalid pause threshold: %d ms, must be in [%d,%d]",
			settings.PauseThreshold, PauseThresholdMsMin, PauseThresholdMsMax)
	}
	if settings.StatusInterval <= 0 {
		return validationErr("invalid status interval: %d ms, must be greater than 0",
			settings.StatusInterval)
	}
	return nil
}

// ValidateDetectorSettings validates the frequency search range against the
// sample rate.
func ValidateDetectorSettings(settings *DetectorSettings, sampleRate int) error {
	nyquist := float64(sampleRate) / 2
	if settings.FreqMin <= 0 {
		return validationErr("invalid detector freqmin: %g, must be greater than 0", settings.FreqMin)
	}
	if settings.FreqMax <= settings.FreqMin {
		return validationErr("invalid detector frequency range: [%g,%g]",
			settings.FreqMin, settings.FreqMax)
	}
	if settings.FreqMax >= nyquist {
		return validationErr("detector freqmax %g exceeds Nyquist frequency %g",
			settings.FreqMax, nyquist)
	}
	if settings.Threshold <= 0 || settings.Threshold >= 1 {
		return validationErr("invalid detector threshold: %g, must be in (0,1)", settings.Threshold)
	}
	if settings.NoiseFloor < 0 {
		return validationErr("invalid detector noise floor: %g, must not be negative", settings.NoiseFloor)
	}
	return nil
}

// ValidateSmootherSettings validates one smoother configuration.
func ValidateSmootherSettings(settings *SmootherSettings) error {
	if settings.AlphaMin <= 0 || settings.AlphaMin > 1 {
		return validationErr("invalid alphamin: %g, must be in (0,1]", settings.AlphaMin)
	}
	if settings.AlphaMax < settings.AlphaMin || settings.AlphaMax > 1 {
		return validationErr("invalid alphamax: %g, must be in [alphamin,1]", settings.AlphaMax)
	}
	if settings.Hampel {
		if settings.HampelWindow < 3 || settings.HampelWindow%2 == 0 {
			return validationErr("invalid hampel window: %d, must be odd and >= 3", settings.HampelWindow)
		}
		if settings.HampelSigma <= 0 {
			return validationErr("invalid hampel sigma: %g, must be greater than 0", settings.HampelSigma)
		}
	}
	if settings.Deadband < 0 {
		return validationErr("invalid deadband: %g, must not be negative", settings.Deadband)
	}
	if settings.DeltaMid <= 0 {
		return validationErr("invalid deltamid: %g, must be greater than 0", settings.DeltaMid)
	}
	if settings.Steepness <= 0 {
		return validationErr("invalid steepness: %g, must be greater than 0", settings.Steepness)
	}
	if settings.Hysteresis && settings.DeltaDown >= settings.DeltaUp {
		return validationErr("invalid hysteresis thresholds: down %g must be below up %g",
			settings.DeltaDown, settings.DeltaUp)
	}
	return nil
}

func validationErr(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryValidation).
		Build()
}
