// Package cmd contains the CLI commands for staleguard.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/logging"
)

var (
	// Used for flags
	configFile string
	verbose    bool
	output     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "staleguard",
	Short: "staleguard - progressive alerts for stale business records",
	Long: `staleguard watches tracked business records and notifies project
managers and controllers when a record has gone too long without activity.

Alerts escalate through info, warning, urgent and critical levels. Sends are
throttled per entity by a daily cap, business hours for non-critical levels,
cooldowns after human responses and an adaptive frequency that tightens
when alerts go unanswered.

Examples:
  # Serve the HTTP API and run alerts on the configured schedule
  staleguard serve -c staleguard.yaml

  # Run one alert cycle now
  staleguard run -c staleguard.yaml

  # Acknowledge an entity for 48 hours
  staleguard ack INV-1042 acknowledged --hours 48`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
}

// loadConfig reads the config file given by --config, or the defaults.
func loadConfig() (*Config, error) {
	if configFile == "" {
		return DefaultConfig(), nil
	}
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg *Config) (*zap.Logger, error) {
	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func jsonOutput() bool {
	return output == "json"
}

// truncate shortens s to maxLen characters for table output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 2 {
		return s[:maxLen]
	}
	return s[:maxLen-2] + ".."
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return formatTime(*t)
}
