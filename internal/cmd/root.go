// Package cmd defines the roundtable CLI: discussion management commands
// plus the interactive TUI entrypoint.
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/config"
	"github.com/kuangren777/llm-roundtable/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Terminal client for multi-LLM roundtable discussions",
	Long: `Roundtable is a terminal client for a multi-LLM discussion server.
It follows live discussion streams, reconciles them into a local
transcript, and lets you steer the conversation, chat with the observer,
and manage discussions, providers and models.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/roundtable/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "backend base URL (overrides server.base_url)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/roundtable")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ROUNDTABLE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., ROUNDTABLE_SERVER_BASE_URL for server.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newAPIClient builds an API client from the effective configuration.
func newAPIClient() (*api.Client, *config.Config) {
	cfg := config.Get()
	return api.NewClient(cfg.Server.BaseURL, api.WithTimeout(cfg.Server.RequestTimeout())), cfg
}

// newLogger opens the client log in the state dir. Logging failures are
// not fatal; commands proceed with a no-op logger.
func newLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	stateDir := cfg.Paths.ResolveStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return logging.NopLogger()
	}
	log, err := logging.NewLogger(stateDir, cfg.Logging.Level)
	if err != nil {
		return logging.NopLogger()
	}
	return log
}
