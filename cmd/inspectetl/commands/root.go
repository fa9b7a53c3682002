// Package commands implements the inspectetl CLI.
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
)

// ErrConfig marks configuration load or validation failures so main can
// exit with a distinct code.
var ErrConfig = errors.New("invalid configuration")

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "inspectetl",
	Short: "Inspection record ingestion pipeline",
	Long: `inspectetl ingests inspection records from an upstream records service:
it imports TIP identifiers from CSV drops (local directory or SFTP), fetches
each record, resolves opaque hashes to display values, downloads and validates
attachments, renders a text report and tracks everything in a relational store.

Use "inspectetl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/inspectetl/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(syncHashesCmd)
	rootCmd.AddCommand(statusCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// loadConfig loads the configuration and initializes the logger from it.
// Every subcommand that touches the pipeline goes through here so logging
// behaves the same in one-shot commands and the continuous runner.
func loadConfig() (*config.Config, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
