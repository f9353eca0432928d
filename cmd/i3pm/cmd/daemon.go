package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"i3pm/internal/app"
	"i3pm/internal/config"
)

var (
	wmSocket string
	stdio    bool
)

// daemonCmd represents the daemon command.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the i3pm daemon",
	Long: `Run the i3pm daemon in the foreground.

The daemon subscribes to WM events, tracks window ownership, and serves
the control socket the other commands talk to. It survives WM restarts:
while the WM is unreachable it degrades, keeps answering queries from
the last known state, and reconnects with backoff.

Example:
  i3pm daemon
  i3pm daemon --wm-socket /run/user/1000/sway-ipc.sock
  i3pm daemon -v`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&wmSocket, "wm-socket", "", "WM IPC socket (default: $I3SOCK or $SWAYSOCK)")
	daemonCmd.Flags().BoolVar(&stdio, "stdio", false, "also serve the control protocol on stdin/stdout")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if wmSocket != "" {
		cfg.WM.SocketPath = wmSocket
	}
	if stdio {
		cfg.Socket.Stdio = true
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}

	log.Info().Msg("i3pm stopped")
	return nil
}
