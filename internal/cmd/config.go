package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kuangren777/llm-roundtable/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or initialize the client configuration",
	RunE:  runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/roundtable/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("Config file: %s\n\n", config.ConfigFile())
	fmt.Printf("server.base_url                  %s\n", cfg.Server.BaseURL)
	fmt.Printf("server.request_timeout_seconds   %d\n", cfg.Server.RequestTimeoutSeconds)
	fmt.Printf("server.poll_interval_ms          %d\n", cfg.Server.PollIntervalMs)
	fmt.Printf("tui.sidebar_width                %d\n", cfg.TUI.SidebarWidth)
	fmt.Printf("tui.show_summaries               %t\n", cfg.TUI.ShowSummaries)
	fmt.Printf("tui.auto_attach                  %t\n", cfg.TUI.AutoAttach)
	fmt.Printf("summary.enabled                  %t\n", cfg.Summary.Enabled)
	fmt.Printf("summary.error_cooldown_seconds   %d\n", cfg.Summary.ErrorCooldownSeconds)
	fmt.Printf("summary.running_cooldown_seconds %d\n", cfg.Summary.RunningCooldownSeconds)
	fmt.Printf("logging.enabled                  %t\n", cfg.Logging.Enabled)
	fmt.Printf("logging.level                    %s\n", cfg.Logging.Level)
	fmt.Printf("paths.state_dir                  %s\n", cfg.Paths.ResolveStateDir())
	return nil
}

const defaultConfigTemplate = `# Roundtable client configuration
server:
  base_url: "http://localhost:8000"
  request_timeout_seconds: 15
  poll_interval_ms: 2500

tui:
  sidebar_width: 32
  show_summaries: true
  auto_attach: true

summary:
  enabled: true
  error_cooldown_seconds: 30
  running_cooldown_seconds: 20

logging:
  enabled: true
  level: info

paths:
  # Empty means <config dir>/state
  state_dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.ConfigFile()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
