package file

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/pitchtrack-go/internal/analysis"
	"github.com/tphakala/pitchtrack-go/internal/conf"
)

// Command creates a new command for offline file analysis.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [input.wav]",
		Short: "Analyze a WAV audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.FileAnalysis(settings, args[0])
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the file command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().Float64Var(&settings.Detector.Threshold, "threshold", viper.GetFloat64("detector.threshold"), "Normalized difference threshold for detection")
	cmd.Flags().Float64Var(&settings.Detector.NoiseFloor, "noisefloor", viper.GetFloat64("detector.noisefloor"), "RMS below which a window counts as silence")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
