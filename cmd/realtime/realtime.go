package realtime

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/pitchtrack-go/internal/analysis"
	"github.com/tphakala/pitchtrack-go/internal/conf"
)

// Command creates a new command for real-time pitch analysis.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Analyze audio in realtime mode",
		Long:  "Capture audio from a device or a synthetic test signal and track pitch and volume continuously.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Audio.Source, "source", viper.GetString("audio.source"), "Audio capture source (\"sysdefault\", \"USB Audio\", etc.)")
	cmd.Flags().BoolVar(&settings.Audio.TestSignal.Enabled, "testsignal", viper.GetBool("audio.testsignal.enabled"), "Use a synthetic test signal instead of a device")
	cmd.Flags().StringVar(&settings.Audio.TestSignal.Waveform, "waveform", viper.GetString("audio.testsignal.waveform"), "Test signal waveform (sine/square/triangle/noise)")
	cmd.Flags().Float64Var(&settings.Audio.TestSignal.FrequencyHz, "frequency", viper.GetFloat64("audio.testsignal.frequency"), "Test signal frequency in Hz")
	cmd.Flags().IntVar(&settings.Pool.Size, "poolsize", viper.GetInt("pool.size"), "Number of pooled capture buffers")
	cmd.Flags().IntVar(&settings.Pool.Timeout, "pooltimeout", viper.GetInt("pool.timeout"), "Buffer reclamation timeout in ms")
	cmd.Flags().IntVar(&settings.Realtime.Interval, "interval", viper.GetInt("realtime.interval"), "Host processing tick in ms")
	cmd.Flags().BoolVar(&settings.Realtime.ProcessingTime, "processingtime", viper.GetBool("realtime.processingtime"), "Report processing time for each update")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "metrics", viper.GetBool("metrics.enabled"), "Enable Prometheus metrics endpoint")
	cmd.Flags().StringVar(&settings.Metrics.Listen, "listen", viper.GetString("metrics.listen"), "Listen address and port of the metrics endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
