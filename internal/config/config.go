// Package config handles configuration management for i3pm.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the daemon and CLI.
type Config struct {
	Socket  SocketConfig  `mapstructure:"socket"`
	State   StateConfig   `mapstructure:"state"`
	WM      WMConfig      `mapstructure:"wm"`
	Launch  LaunchConfig  `mapstructure:"launch"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SocketConfig holds control socket configuration.
type SocketConfig struct {
	// Path is the unix socket the control server listens on.
	Path string `mapstructure:"path"`

	// Stdio additionally serves the control protocol on stdin/stdout.
	Stdio bool `mapstructure:"stdio"`
}

// StateConfig holds persisted state locations.
type StateConfig struct {
	// Dir holds the window tracking file and the active-project pointer.
	Dir string `mapstructure:"dir"`

	// ProjectsDir holds one JSON file per project.
	ProjectsDir string `mapstructure:"projects_dir"`
}

// WMConfig holds window manager IPC configuration.
type WMConfig struct {
	// SocketPath overrides $I3SOCK/$SWAYSOCK discovery when set.
	SocketPath string `mapstructure:"socket_path"`

	// TimeoutMS bounds each IPC round trip.
	TimeoutMS int `mapstructure:"timeout_ms"`

	// ReconnectMinMS and ReconnectMaxMS bound the backoff while the
	// daemon is degraded.
	ReconnectMinMS int `mapstructure:"reconnect_min_ms"`
	ReconnectMaxMS int `mapstructure:"reconnect_max_ms"`
}

// LaunchConfig holds launch correlation configuration.
type LaunchConfig struct {
	// ExpiryMS is how long a pending launch stays eligible for matching.
	ExpiryMS int `mapstructure:"expiry_ms"`
}

// WatcherConfig holds the projects-directory watcher configuration.
type WatcherConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	DebounceMS int  `mapstructure:"debounce_ms"`
}

// QueueConfig holds mutation queue configuration.
type QueueConfig struct {
	// Depth is the queue buffer size.
	Depth int `mapstructure:"depth"`

	// OperationTimeoutMS bounds each RPC-initiated mutation.
	OperationTimeoutMS int `mapstructure:"operation_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(userConfigDir(), "i3pm"))
	}

	// Environment variable prefix
	v.SetEnvPrefix("I3PM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("socket.path", DefaultSocketPath())
	v.SetDefault("socket.stdio", false)

	v.SetDefault("state.dir", defaultStateDir())
	v.SetDefault("state.projects_dir", filepath.Join(userConfigDir(), "i3pm", "projects"))

	v.SetDefault("wm.socket_path", "")
	v.SetDefault("wm.timeout_ms", 3000)
	v.SetDefault("wm.reconnect_min_ms", 500)
	v.SetDefault("wm.reconnect_max_ms", 8000)

	v.SetDefault("launch.expiry_ms", 5000)

	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.debounce_ms", 250)

	v.SetDefault("queue.depth", 64)
	v.SetDefault("queue.operation_timeout_ms", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// DefaultSocketPath returns the per-user control socket location.
func DefaultSocketPath() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "i3pm", "ipc.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("i3pm-%d", os.Getuid()), "ipc.sock")
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "i3pm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "i3pm-state")
	}
	return filepath.Join(home, ".local", "state", "i3pm")
}

func userConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config")
}

// WindowStateFile returns the path of the window tracking file.
func (c *Config) WindowStateFile() string {
	return filepath.Join(c.State.Dir, "window-state.json")
}
