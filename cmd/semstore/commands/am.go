package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/semstore/am"
	"github.com/teranos/semstore/errors"
	"github.com/teranos/semstore/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage semstore configuration",
	Long: sym.AM + ` am - Manage semstore configuration

Configuration sources (in order of precedence):
1. Environment variables (SEMSTORE_* prefix, e.g. SEMSTORE_DATABASE_PATH)
2. Project config (./semstore.toml, searched up the directory tree)
3. User config (~/.semstore/semstore.toml)
4. Default values

Examples:
  semstore am show                # Show current configuration
  semstore am show --format yaml  # Show configuration as YAML
  semstore am validate            # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current semstore configuration from all sources",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out, err := formatConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func formatConfig(cfg *am.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to YAML")
		}
		return "# semstore configuration\n" + string(data), nil
	case "toml":
		data, err := cfg.Marshal()
		if err != nil {
			return "", err
		}
		return "# semstore configuration\n" + string(data), nil
	}
	return "", errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}
