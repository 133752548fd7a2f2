package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewd/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "reviewd %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

func init() {
	rootCmd.AddCommand(configCmd, versionCmd)
}

func configShowRun() error {
	if file := viper.ConfigFileUsed(); file != "" {
		ui.Info("Config file: %s", file)
	} else {
		ui.Info("No config file found, using defaults")
	}

	keys := []string{
		"db_path",
		"data_dir",
		"port",
		"anthropic.model",
		"anthropic.max_tokens",
		"ingest.timeout",
		"ingest.git_http_proxy",
		"analyzer.max_attempts",
		"analyzer.max_excerpt_bytes",
	}
	for _, k := range keys {
		fmt.Fprintf(ui.Out, "  %s: %v\n", output.Cyan(k), viper.Get(k))
	}

	if viper.GetString("anthropic.api_key") == "" {
		ui.Warning("anthropic.api_key is not set; analysis will fail")
	} else {
		ui.Success("anthropic.api_key is set")
	}
	return nil
}
