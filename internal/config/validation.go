package config

import (
	"fmt"
	"path/filepath"
)

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true,
	"warn": true, "error": true,
}

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if cfg.Socket.Path == "" {
		return fmt.Errorf("socket.path must not be empty")
	}
	if !filepath.IsAbs(cfg.Socket.Path) {
		return fmt.Errorf("socket.path must be absolute: %s", cfg.Socket.Path)
	}

	if cfg.State.Dir == "" {
		return fmt.Errorf("state.dir must not be empty")
	}
	if cfg.State.ProjectsDir == "" {
		return fmt.Errorf("state.projects_dir must not be empty")
	}

	if cfg.WM.TimeoutMS <= 0 {
		return fmt.Errorf("wm.timeout_ms must be positive")
	}
	if cfg.WM.ReconnectMinMS <= 0 || cfg.WM.ReconnectMaxMS < cfg.WM.ReconnectMinMS {
		return fmt.Errorf("wm reconnect backoff bounds are invalid: min=%d max=%d",
			cfg.WM.ReconnectMinMS, cfg.WM.ReconnectMaxMS)
	}

	if cfg.Launch.ExpiryMS <= 0 {
		return fmt.Errorf("launch.expiry_ms must be positive")
	}

	if cfg.Watcher.DebounceMS < 0 {
		return fmt.Errorf("watcher.debounce_ms must not be negative")
	}

	if cfg.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be positive")
	}
	if cfg.Queue.OperationTimeoutMS <= 0 {
		return fmt.Errorf("queue.operation_timeout_ms must be positive")
	}

	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error")
	}
	if cfg.Logging.Format != "console" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be console or json")
	}

	return nil
}
