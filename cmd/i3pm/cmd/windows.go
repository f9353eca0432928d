package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// windowsCmd groups the window query subcommands.
var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Inspect tracked windows",
}

func init() {
	windowsCmd.AddCommand(windowsListCmd)
	windowsCmd.AddCommand(windowsHiddenCmd)
	windowsCmd.AddCommand(windowsStateCmd)
}

var windowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tracked window",
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		result, err := dc.ListWindows(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}

		if result.Total == 0 {
			fmt.Println("no tracked windows")
			return nil
		}
		fmt.Printf("%-12s %-16s %-12s %-6s %s\n", "WINDOW", "PROJECT", "APP", "WS", "STATE")
		for _, w := range result.Windows {
			state := "visible"
			if w.Hidden {
				state = "hidden"
			}
			project := w.Project
			if project == "" {
				project = "-"
			}
			app := w.App
			if app == "" {
				app = "-"
			}
			fmt.Printf("%-12d %-16s %-12s %-6d %s\n", w.WindowID, project, app, w.Workspace, state)
		}
		return nil
	},
}

var windowsHiddenCmd = &cobra.Command{
	Use:   "hidden",
	Short: "List scratchpad-resident windows grouped by project",
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		result, err := dc.GetHidden(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}

		if result.TotalHidden == 0 {
			fmt.Println("no hidden windows")
			return nil
		}
		for _, p := range result.Projects {
			fmt.Printf("%s (%d):\n", p.ProjectName, len(p.Windows))
			for _, w := range p.Windows {
				fmt.Printf("  window %d -> workspace %d", w.WindowID, w.Workspace)
				if w.Floating {
					fmt.Print(" floating")
				}
				fmt.Println()
			}
		}
		fmt.Printf("total: %d\n", result.TotalHidden)
		return nil
	},
}

var windowsStateCmd = &cobra.Command{
	Use:   "state <window-id>",
	Short: "Show everything tracked about one window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		windowID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid window id %q", args[0])
		}

		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		result, err := dc.GetWindowState(ctx, windowID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}

		fmt.Printf("window %d\n", result.WindowID)
		fmt.Printf("  project:   %s\n", orDash(result.Project))
		fmt.Printf("  app:       %s\n", orDash(result.App))
		fmt.Printf("  scope:     %s\n", orDash(string(result.Scope)))
		fmt.Printf("  workspace: %d\n", result.Workspace)
		fmt.Printf("  floating:  %t\n", result.Floating)
		if result.Geometry != nil {
			g := result.Geometry
			fmt.Printf("  geometry:  %dx%d at %d,%d\n", g.Width, g.Height, g.X, g.Y)
		}
		fmt.Printf("  visible:   %t\n", result.Visible)
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
