package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd shows the daemon's state and counters.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		result, err := dc.Status(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}

		fmt.Printf("i3pm %s (%s)\n", result.Version, result.State)
		fmt.Printf("  active project:   %s\n", orDash(result.ActiveProject))
		fmt.Printf("  tracked windows:  %d\n", result.TrackedWindows)
		fmt.Printf("  hidden windows:   %d\n", result.HiddenWindows)
		fmt.Printf("  pending launches: %d\n", result.PendingLaunches)
		fmt.Printf("  clients:          %d\n", result.Clients)
		fmt.Printf("  uptime:           %ds\n", result.UptimeSeconds)
		fmt.Printf("  socket:           %s\n", result.SocketPath)
		return nil
	},
}
