package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/pitchtrack-go/internal/audio"
)

// Command creates a new command that lists available capture devices.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := audio.ListCaptureDevices()
			if err != nil {
				return err
			}

			fmt.Println("Available Capture Sources:")
			for _, device := range found {
				fmt.Printf("  %d: %s [%s]\n", device.Index, device.Name, device.ID)
			}
			if len(found) == 0 {
				fmt.Println("  (none found)")
			}
			return nil
		},
	}
}
