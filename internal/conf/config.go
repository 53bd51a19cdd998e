// Package conf provides engine configuration: a viper-backed settings
// struct with explicit defaults and set-time validation.
package conf

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"

	"github.com/tphakala/pitchtrack-go/internal/errors"
)

// Settings is the root configuration for the engine.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug level logging

	Main struct {
		Name string    `yaml:"name"` // instance name used in log records
		Log  LogConfig `yaml:"log"`
	} `yaml:"main"`

	Audio    AudioSettings    `yaml:"audio"`
	Pool     PoolSettings     `yaml:"pool"`
	Detector DetectorSettings `yaml:"detector"`
	Smoother struct {
		Pitch  SmootherSettings `yaml:"pitch"`
		Volume SmootherSettings `yaml:"volume"`
	} `yaml:"smoother"`
	Realtime RealtimeSettings `yaml:"realtime"`
	Metrics  MetricsSettings  `yaml:"metrics"`
}

// LogConfig holds file logging settings.
type LogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AudioSettings configures the capture side of the engine.
type AudioSettings struct {
	Source     string `yaml:"source"`     // capture device name or ID, "sysdefault" for system default
	SampleRate int    `yaml:"samplerate"` // samples per second
	BatchSize  int    `yaml:"batchsize"`  // frames per capture batch
	WindowSize int    `yaml:"windowsize"` // analysis window length in samples
	HopSize    int    `yaml:"hopsize"`    // new samples required between analyses

	TestSignal TestSignalSettings `yaml:"testsignal"`
}

// TestSignalSettings configures the synthetic signal source used in place
// of live hardware input during testing.
type TestSignalSettings struct {
	Enabled     bool    `yaml:"enabled"`
	Waveform    string  `yaml:"waveform"` // sine, square, triangle, noise
	FrequencyHz float64 `yaml:"frequency"`
	Amplitude   float64 `yaml:"amplitude"`
}

// PoolSettings configures the capture-side buffer pool.
type PoolSettings struct {
	Size           int `yaml:"size"`           // number of pooled buffers, [4,64]
	Timeout        int `yaml:"timeout"`        // in-flight reclamation timeout, [100,30000] ms
	PauseThreshold int `yaml:"pausethreshold"` // slow acquisition flag threshold, [1,1000] ms
	StatusInterval int `yaml:"statusinterval"` // cadence of Status messages toward the host
}

// DetectorSettings configures the pitch detector.
type DetectorSettings struct {
	FreqMin    float64 `yaml:"freqmin"`    // lower bound of the search range in Hz
	FreqMax    float64 `yaml:"freqmax"`    // upper bound of the search range in Hz
	Threshold  float64 `yaml:"threshold"`  // cumulative-mean-normalized difference threshold
	NoiseFloor float64 `yaml:"noisefloor"` // RMS below which the window is treated as silence
}

// SmootherSettings configures one adaptive smoother instance.
type SmootherSettings struct {
	Median3      bool    `yaml:"median3"`
	Hampel       bool    `yaml:"hampel"`
	HampelWindow int     `yaml:"hampelwindow"` // odd, >= 3
	HampelSigma  float64 `yaml:"hampelsigma"`
	AlphaMin     float64 `yaml:"alphamin"`
	AlphaMax     float64 `yaml:"alphamax"`
	Deadband     float64 `yaml:"deadband"`  // 0 disables the deadband
	DeltaMid     float64 `yaml:"deltamid"`  // logistic midpoint, in input units
	Steepness    float64 `yaml:"steepness"` // logistic steepness
	Hysteresis   bool    `yaml:"hysteresis"`
	DeltaDown    float64 `yaml:"deltadown"` // quiet-mode entry threshold, < deltaup
	DeltaUp      float64 `yaml:"deltaup"`   // moving-mode entry threshold
}

// RealtimeSettings configures the host processing loop.
type RealtimeSettings struct {
	Interval       int  `yaml:"interval"`       // host tick interval in ms
	ProcessingTime bool `yaml:"processingtime"` // report per-window processing time
}

// MetricsSettings configures the Prometheus metrics endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port for the metrics HTTP listener
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a
// validated Settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/pitchtrack-go")
	viper.SetEnvPrefix("pitchtrack")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine, defaults apply.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// Setting returns the current settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	s := settingsInstance
	settingsMutex.RUnlock()
	if s != nil {
		return s
	}

	loaded, err := Load()
	if err != nil {
		return nil
	}
	return loaded
}
