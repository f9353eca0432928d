package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"i3pm/internal/procenv"
	"i3pm/internal/rpc/handler/methods"
)

var (
	launchProject   string
	launchClass     string
	launchApp       string
	launchScope     string
	launchWorkspace int
)

// launchCmd is the launch wrapper: it registers intent with the daemon,
// tags the environment, and execs the application in place.
var launchCmd = &cobra.Command{
	Use:   "launch --project <name> --class <class> -- <command> [args...]",
	Short: "Launch an application owned by a project",
	Long: `Launch an application with project ownership.

The wrapper registers the launch with the daemon so the first matching
window is attributed immediately, injects ownership tags into the
environment as a fallback, and then replaces itself with the command.

A daemon that is not running only costs the registration: the
environment tags still attribute the window once the daemon sees it.

Example:
  i3pm launch --project backend --class Alacritty -- alacritty
  i3pm launch --project notes --class obsidian --scope global -- obsidian
  i3pm launch --project web --class firefox --workspace 3 -- firefox`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().StringVar(&launchProject, "project", "", "owning project (required)")
	launchCmd.Flags().StringVar(&launchClass, "class", "", "expected window class (required)")
	launchCmd.Flags().StringVar(&launchApp, "app", "", "application name for window records")
	launchCmd.Flags().StringVar(&launchScope, "scope", string(procenv.ScopeScoped), "scoped or global")
	launchCmd.Flags().IntVar(&launchWorkspace, "workspace", 0, "intended workspace number")
	_ = launchCmd.MarkFlagRequired("project")
	_ = launchCmd.MarkFlagRequired("class")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	if launchScope != string(procenv.ScopeScoped) && launchScope != string(procenv.ScopeGlobal) {
		return fmt.Errorf("scope must be %q or %q", procenv.ScopeScoped, procenv.ScopeGlobal)
	}

	appID := registerLaunch()

	path, err := exec.LookPath(args[0])
	if err != nil {
		return fmt.Errorf("command not found: %s", args[0])
	}

	env := append(os.Environ(),
		procenv.KeyProjectName+"="+launchProject,
		procenv.KeyScope+"="+launchScope,
	)
	if launchApp != "" {
		env = append(env, procenv.KeyAppName+"="+launchApp)
	}
	if appID != "" {
		env = append(env, procenv.KeyAppID+"="+appID)
	}
	if launchWorkspace != 0 {
		// Informational for the launched process; correlation carries the
		// workspace hint through the registration.
		env = append(env, "I3PM_WORKSPACE="+strconv.Itoa(launchWorkspace))
	}

	return syscall.Exec(path, args, env)
}

// registerLaunch tells the daemon a window is coming. Best effort: the
// environment tags cover attribution when the daemon is unreachable.
func registerLaunch() string {
	dc, err := dialDaemon()
	if err != nil {
		log.Debug().Err(err).Msg("daemon unreachable, relying on environment tags")
		return ""
	}
	defer dc.Close()

	ctx, cancel := callTimeout()
	defer cancel()

	appID, err := dc.RegisterLaunch(ctx, methods.RegisterParams{
		Class:     launchClass,
		Project:   launchProject,
		App:       launchApp,
		Scope:     launchScope,
		Workspace: launchWorkspace,
	})
	if err != nil {
		log.Debug().Err(err).Msg("launch registration failed, relying on environment tags")
		return ""
	}
	return appID
}
