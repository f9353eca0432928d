package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"i3pm/internal/rpc/handler/methods"
)

var (
	createDisplayName string
	createIcon        string
	createDirectory   string
	switchFrom        string
	switchNoActivate  bool
)

// projectCmd groups the project subcommands.
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects and switch between them",
}

func init() {
	projectCreateCmd.Flags().StringVar(&createDisplayName, "display-name", "", "human-readable name")
	projectCreateCmd.Flags().StringVar(&createIcon, "icon", "", "icon glyph for bars and pickers")
	projectCreateCmd.Flags().StringVar(&createDirectory, "directory", "", "project working directory")

	projectSwitchCmd.Flags().StringVar(&switchFrom, "from", "", "hide this project instead of the active one (implies --no-activate)")
	projectSwitchCmd.Flags().BoolVar(&switchNoActivate, "no-activate", false, "filter windows without moving the active pointer")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	projectCmd.AddCommand(projectSwitchCmd)
	projectCmd.AddCommand(projectHideCmd)
	projectCmd.AddCommand(projectRestoreCmd)
}

func callTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		result, err := dc.ListProjects(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}

		if len(result.Projects) == 0 {
			fmt.Println("no projects defined")
			return nil
		}
		for _, p := range result.Projects {
			marker := " "
			if p.Name == result.Active {
				marker = "*"
			}
			display := p.DisplayName
			if display == "" {
				display = p.Name
			}
			fmt.Printf("%s %-20s %s\n", marker, p.Name, display)
		}
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		err = dc.CreateProject(ctx, methods.CreateParams{
			Name:        args[0],
			DisplayName: createDisplayName,
			Icon:        createIcon,
			Directory:   createDirectory,
		})
		if err != nil {
			return err
		}
		fmt.Printf("project %q created\n", args[0])
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		if err := dc.DeleteProject(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("project %q deleted\n", args[0])
		return nil
	},
}

var projectSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Switch to a project",
	Long: `Switch to a project: the active project's windows go to the
scratchpad and the named project's windows come back to their captured
workspaces. With --no-activate the windows are filtered but the active
pointer stays where it is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		var result *methods.SwitchProjectResult
		if switchNoActivate || switchFrom != "" {
			result, err = dc.SwitchWithFiltering(ctx, switchFrom, args[0])
		} else {
			result, err = dc.Switch(ctx, args[0])
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}

		hidden, restored := 0, 0
		if result.Hide != nil {
			hidden = result.Hide.WindowsHidden
		}
		if result.Restore != nil {
			restored = result.Restore.WindowsRestored
		}
		fmt.Printf("switched to %q: %d hidden, %d restored (%dms)\n",
			result.To, hidden, restored, result.DurationMs)
		return nil
	},
}

var projectHideCmd = &cobra.Command{
	Use:   "hide <name>",
	Short: "Hide a project's windows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		result, err := dc.HideWindows(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("%d windows hidden (%dms)\n", result.WindowsHidden, result.DurationMs)
		for _, e := range result.Errors {
			fmt.Printf("  window %d failed: %s\n", e.WindowID, e.Error)
		}
		return nil
	},
}

var projectRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Restore a project's windows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dc, err := dialDaemon()
		if err != nil {
			return err
		}
		defer dc.Close()

		ctx, cancel := callTimeout()
		defer cancel()

		result, err := dc.RestoreWindows(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("%d windows restored (%dms)\n", result.WindowsRestored, result.DurationMs)
		for _, r := range result.Restorations {
			note := ""
			if r.Fallback {
				note = " (fallback)"
			}
			fmt.Printf("  window %d -> workspace %d%s\n", r.WindowID, r.Workspace, note)
		}
		for _, e := range result.Errors {
			fmt.Printf("  window %d failed: %s\n", e.WindowID, e.Error)
		}
		return nil
	},
}
