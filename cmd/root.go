package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/pitchtrack-go/cmd/devices"
	"github.com/tphakala/pitchtrack-go/cmd/file"
	"github.com/tphakala/pitchtrack-go/cmd/realtime"
	"github.com/tphakala/pitchtrack-go/internal/conf"
	"github.com/tphakala/pitchtrack-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pitchtrack",
		Short: "PitchTrack-Go CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		realtime.Command(settings),
		file.Command(settings),
		devices.Command(),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines global flags shared by every subcommand and binds
// them to viper so they override the configuration file.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.SampleRate, "samplerate", viper.GetInt("audio.samplerate"), "Capture sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.WindowSize, "windowsize", viper.GetInt("audio.windowsize"), "Analysis window length in samples")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.HopSize, "hopsize", viper.GetInt("audio.hopsize"), "New samples required between analyses")
	rootCmd.PersistentFlags().Float64Var(&settings.Detector.FreqMin, "freqmin", viper.GetFloat64("detector.freqmin"), "Lower bound of the pitch search range in Hz")
	rootCmd.PersistentFlags().Float64Var(&settings.Detector.FreqMax, "freqmax", viper.GetFloat64("detector.freqmax"), "Upper bound of the pitch search range in Hz")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
