package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/fleetdash/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config [key] [value]",
	Short:   "Get or set configuration values",
	GroupID: groupSetup,
	Long: `Get or set fleetdash configuration values.

Without arguments, lists all configuration keys.
With one argument, shows the value of that key.
With two arguments, sets the key to the value.

Configuration is stored in ~/.config/fleetdash/config.yaml (XDG compliant).
Picker tabs are edited in the file directly.

Keys are in the format: section.key
Sections: server, storage, picker

Examples:
  fleetdash config                          # List all keys
  fleetdash config picker.page_size         # Get picker.page_size
  fleetdash config picker.transport http    # Let the picker use the HTTP API
  fleetdash config server.log_level debug`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	paths := config.DefaultPaths()
	path := configPath(paths)
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	switch len(args) {
	case 0:
		return listConfig(out, cfg, path)
	case 1:
		return getConfig(out, cfg, args[0])
	case 2:
		return setConfig(out, cfg, path, args[0], args[1])
	}

	return nil
}

func listConfig(out io.Writer, cfg *config.Config, path string) error {
	fmt.Fprintf(out, "%sConfiguration Keys%s\n", colorBold, colorReset)
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintln(out)

	var failedKeys []string
	for _, key := range config.ListKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			failedKeys = append(failedKeys, key)
			continue
		}

		displayValue := value
		if displayValue == "" {
			displayValue = colorDim + "(not set)" + colorReset
		}

		fmt.Fprintf(out, "  %s%s%s = %s\n", colorCyan, key, colorReset, displayValue)
	}

	if len(failedKeys) > 0 {
		fmt.Fprintf(out, "\n%sWarning:%s Failed to retrieve keys: %s\n", colorYellow, colorReset, strings.Join(failedKeys, ", "))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%sTabs%s\n", colorBold, colorReset)
	for _, tab := range cfg.Picker.Tabs {
		var filters []string
		for _, k := range tab.FilterKeys() {
			filters = append(filters, k+"="+tab.Filters[k])
		}
		fmt.Fprintf(out, "  %s%s%s  %s (%s)", colorCyan, tab.ID, colorReset, tab.Label, tab.Kind)
		if len(filters) > 0 {
			fmt.Fprintf(out, " %s%s%s", colorDim, strings.Join(filters, " "), colorReset)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config file: %s\n", path)

	return nil
}

func getConfig(out io.Writer, cfg *config.Config, key string) error {
	value, err := cfg.Get(key)
	if err != nil {
		return err
	}

	if value == "" {
		fmt.Fprintf(out, "%s(not set)%s\n", colorDim, colorReset)
	} else {
		fmt.Fprintln(out, value)
	}

	return nil
}

func setConfig(out io.Writer, cfg *config.Config, path, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.SaveToFile(path); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s%s%s = %s\n", colorCyan, key, colorReset, value)
	fmt.Fprintf(out, "Saved to: %s\n", path)

	return nil
}
