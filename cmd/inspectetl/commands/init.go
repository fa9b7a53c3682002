package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goldstarfreight/inspectetl/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample inspectetl configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/inspectetl/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  inspectetl init

  # Initialize with custom path
  inspectetl init --config /etc/inspectetl/config.yaml

  # Force overwrite existing config
  inspectetl init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set the upstream base_url, media_service_url, namespace and token")
	fmt.Println("  2. Adjust the kind schemas to match your record types")
	fmt.Println("  3. Start the pipeline with: inspectetl start")
	fmt.Println("\nSecurity note:")
	fmt.Println("  Prefer providing the bearer token via an environment variable:")
	fmt.Println("    export INSPECTETL_UPSTREAM_TOKEN=...")

	return nil
}
