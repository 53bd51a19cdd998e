// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "PitchTrack-Go")
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "pitchtrack.log")

	viper.SetDefault("audio.source", "sysdefault")
	viper.SetDefault("audio.samplerate", SampleRate)
	viper.SetDefault("audio.batchsize", 128)
	viper.SetDefault("audio.windowsize", 2048)
	viper.SetDefault("audio.hopsize", 512)

	viper.SetDefault("audio.testsignal.enabled", false)
	viper.SetDefault("audio.testsignal.waveform", "sine")
	viper.SetDefault("audio.testsignal.frequency", 440.0)
	viper.SetDefault("audio.testsignal.amplitude", 0.5)

	viper.SetDefault("pool.size", 8)
	viper.SetDefault("pool.timeout", 2000)
	viper.SetDefault("pool.pausethreshold", 50)
	viper.SetDefault("pool.statusinterval", 1000)

	viper.SetDefault("detector.freqmin", 60.0)
	viper.SetDefault("detector.freqmax", 1500.0)
	viper.SetDefault("detector.threshold", 0.1)
	viper.SetDefault("detector.noisefloor", 0.01)

	viper.SetDefault("smoother.pitch.median3", true)
	viper.SetDefault("smoother.pitch.hampel", true)
	viper.SetDefault("smoother.pitch.hampelwindow", 5)
	viper.SetDefault("smoother.pitch.hampelsigma", 3.0)
	viper.SetDefault("smoother.pitch.alphamin", 0.05)
	viper.SetDefault("smoother.pitch.alphamax", 0.9)
	viper.SetDefault("smoother.pitch.deadband", 0.0)
	viper.SetDefault("smoother.pitch.deltamid", 8.0)
	viper.SetDefault("smoother.pitch.steepness", 0.5)
	viper.SetDefault("smoother.pitch.hysteresis", true)
	viper.SetDefault("smoother.pitch.deltadown", 2.0)
	viper.SetDefault("smoother.pitch.deltaup", 6.0)

	viper.SetDefault("smoother.volume.median3", true)
	viper.SetDefault("smoother.volume.hampel", false)
	viper.SetDefault("smoother.volume.hampelwindow", 5)
	viper.SetDefault("smoother.volume.hampelsigma", 3.0)
	viper.SetDefault("smoother.volume.alphamin", 0.1)
	viper.SetDefault("smoother.volume.alphamax", 0.8)
	viper.SetDefault("smoother.volume.deadband", 0.002)
	viper.SetDefault("smoother.volume.deltamid", 0.05)
	viper.SetDefault("smoother.volume.steepness", 60.0)
	viper.SetDefault("smoother.volume.hysteresis", false)
	viper.SetDefault("smoother.volume.deltadown", 0.01)
	viper.SetDefault("smoother.volume.deltaup", 0.05)

	viper.SetDefault("realtime.interval", 10)
	viper.SetDefault("realtime.processingtime", false)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "localhost:9090")
}
