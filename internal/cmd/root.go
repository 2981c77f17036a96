package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runger/fleetdash/internal/config"
)

const (
	groupServe = "serve"
	groupData  = "data"
	groupSetup = "setup"
)

// configFile overrides the default config path when set.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "fleetdash",
	Short: "fleet directory server and remote-search picker",
	Long: `fleetdash - fleet directory server and remote-search picker
  - serve clients, users, vehicles and access levels over HTTP and gRPC
  - page through them with fleet-picker`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/fleetdash/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupServe, Title: "Server:"},
		&cobra.Group{ID: groupData, Title: "Directory data:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the config named by --config, or the default one, and
// fills in the default paths.
func loadConfig() (*config.Config, *config.Paths, error) {
	paths := config.DefaultPaths()
	cfg, err := config.LoadFromFile(configPath(paths))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	paths.Resolve(cfg)
	return cfg, paths, nil
}

// configPath returns the file config writes go to.
func configPath(paths *config.Paths) string {
	if configFile != "" {
		return configFile
	}
	return paths.ConfigFile()
}
