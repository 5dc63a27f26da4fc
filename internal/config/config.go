// Package config defines the roundtable client configuration, loaded via
// viper from a YAML file with ROUNDTABLE_* environment overrides.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete client configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	TUI     TUIConfig     `mapstructure:"tui"`
	Summary SummaryConfig `mapstructure:"summary"`
	Logging LoggingConfig `mapstructure:"logging"`
	Paths   PathsConfig   `mapstructure:"paths"`
}

// ServerConfig locates the backend and tunes request behavior.
type ServerConfig struct {
	// BaseURL is the backend origin, e.g. "http://localhost:8000".
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeoutSeconds bounds non-streaming REST calls.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	// PollIntervalMs is the poll-fallback cadence while a discussion runs
	// without an attached stream.
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// TUIConfig controls the terminal UI.
type TUIConfig struct {
	// SidebarWidth is the discussion-list panel width in columns.
	SidebarWidth int `mapstructure:"sidebar_width"`
	// ShowSummaries renders message summaries instead of full content for
	// long messages when available.
	ShowSummaries bool `mapstructure:"show_summaries"`
	// AutoAttach reattaches the live stream when opening a discussion
	// that is already running server-side.
	AutoAttach bool `mapstructure:"auto_attach"`
}

// SummaryConfig tunes the background summarizer.
type SummaryConfig struct {
	// Enabled turns background summarization on.
	Enabled bool `mapstructure:"enabled"`
	// ErrorCooldownSeconds suppresses retries after a failed run.
	ErrorCooldownSeconds int `mapstructure:"error_cooldown_seconds"`
	// RunningCooldownSeconds spaces out attempts while the discussion is
	// actively generating.
	RunningCooldownSeconds int `mapstructure:"running_cooldown_seconds"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
}

// PathsConfig locates the client state directory.
type PathsConfig struct {
	// StateDir holds live-state snapshots and the client log. Empty means
	// the default under the user config dir.
	StateDir string `mapstructure:"state_dir"`
}

// RequestTimeout returns the REST timeout as a time.Duration.
func (s *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the poll cadence as a time.Duration.
func (s *ServerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// ErrorCooldown returns the summarizer error cooldown as a time.Duration.
func (s *SummaryConfig) ErrorCooldown() time.Duration {
	return time.Duration(s.ErrorCooldownSeconds) * time.Second
}

// RunningCooldown returns the summarizer running cooldown as a
// time.Duration.
func (s *SummaryConfig) RunningCooldown() time.Duration {
	return time.Duration(s.RunningCooldownSeconds) * time.Second
}

// ResolveStateDir returns the configured state directory, or the default
// under the config dir when unset.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir != "" {
		return p.StateDir
	}
	return filepath.Join(ConfigDir(), "state")
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:               "http://localhost:8000",
			RequestTimeoutSeconds: 15,
			PollIntervalMs:        2500,
		},
		TUI: TUIConfig{
			SidebarWidth:  32,
			ShowSummaries: true,
			AutoAttach:    true,
		},
		Summary: SummaryConfig{
			Enabled:                true,
			ErrorCooldownSeconds:   30,
			RunningCooldownSeconds: 20,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Paths: PathsConfig{},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("server.base_url", defaults.Server.BaseURL)
	viper.SetDefault("server.request_timeout_seconds", defaults.Server.RequestTimeoutSeconds)
	viper.SetDefault("server.poll_interval_ms", defaults.Server.PollIntervalMs)

	viper.SetDefault("tui.sidebar_width", defaults.TUI.SidebarWidth)
	viper.SetDefault("tui.show_summaries", defaults.TUI.ShowSummaries)
	viper.SetDefault("tui.auto_attach", defaults.TUI.AutoAttach)

	viper.SetDefault("summary.enabled", defaults.Summary.Enabled)
	viper.SetDefault("summary.error_cooldown_seconds", defaults.Summary.ErrorCooldownSeconds)
	viper.SetDefault("summary.running_cooldown_seconds", defaults.Summary.RunningCooldownSeconds)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load reads the configuration from viper into a Config struct and
// validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// loading fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "roundtable")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".roundtable"
	}
	return filepath.Join(home, ".config", "roundtable")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
