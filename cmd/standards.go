package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/reviewd/internal/models"
)

var standardsCmd = &cobra.Command{
	Use:   "standards",
	Short: "Manage the standards store",
}

var standardsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a standard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		version, _ := cmd.Flags().GetString("version")
		file, _ := cmd.Flags().GetString("file")
		return standardsAddRun(args[0], scope, version, file)
	},
}

var standardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List standards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return standardsListRun()
	},
}

var standardsImportCmd = &cobra.Command{
	Use:   "import <bundle.yaml>",
	Short: "Import a YAML bundle of standards",
	Long: `Import standards from a YAML file. The file holds a list of entries
with name, scope, version, and text fields. Existing standards with the
same name and version are updated in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return standardsImportRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(standardsCmd)
	standardsCmd.AddCommand(standardsAddCmd, standardsListCmd, standardsImportCmd)

	standardsAddCmd.Flags().String("scope", "org", `Scope tag: "org", "language:<name>", or "framework:<name>"`)
	standardsAddCmd.Flags().String("version", "1", "Standard version")
	standardsAddCmd.Flags().String("file", "", "File containing the rule text (required)")
	_ = standardsAddCmd.MarkFlagRequired("file")
}

func standardsAddRun(name, scope, version, file string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	text, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read rule text: %w", err)
	}

	std := &models.Standard{
		Name:    name,
		Scope:   scope,
		Version: version,
		Text:    string(text),
	}
	if err := s.CreateStandard(context.Background(), std); err != nil {
		return err
	}

	ui.Success("Standard %s added (%s, scope %s)", std.Name, std.ID, std.Scope)
	return nil
}

func standardsListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	standards, err := s.ListStandards(context.Background())
	if err != nil {
		return err
	}

	if len(standards) == 0 {
		ui.Info("No standards in the store.")
		return nil
	}

	table := ui.Table([]string{"ID", "NAME", "SCOPE", "VERSION", "UPDATED"})
	for _, std := range standards {
		_ = table.Append([]string{
			shortID(std.ID),
			std.Name,
			std.Scope,
			std.Version,
			std.UpdatedAt.Local().Format("2006-01-02"),
		})
	}
	return table.Render()
}

// bundleEntry is one standard in an import file.
type bundleEntry struct {
	Name    string `yaml:"name"`
	Scope   string `yaml:"scope"`
	Version string `yaml:"version"`
	Text    string `yaml:"text"`
}

func standardsImportRun(path string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}

	var entries []bundleEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	ctx := context.Background()
	imported := 0
	for i, e := range entries {
		if e.Name == "" || e.Text == "" {
			ui.Warning("Skipping entry %d: name and text are required", i)
			continue
		}
		std := &models.Standard{
			Name:    e.Name,
			Scope:   e.Scope,
			Version: e.Version,
			Text:    e.Text,
		}
		if err := s.UpsertStandard(ctx, std); err != nil {
			return fmt.Errorf("import %s: %w", e.Name, err)
		}
		imported++
	}

	ui.Success("Imported %d standards from %s", imported, path)
	return nil
}
