package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/logstream/pkg/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a logstream configuration file without reading any source.

Checks:
  - YAML syntax
  - Required fields and unique source names
  - Parser regex and timestamp layout validity
  - Source type-specific requirements
  - File source existence (warning only)`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Validating %s...\n", configPath)

	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(w, "\nConfiguration valid!\n")
	fmt.Fprintf(w, "  Store:   %s (%s)\n", cfg.Store.Path, cfg.Store.Type)
	fmt.Fprintf(w, "  Sources: %d\n", len(cfg.Sources))

	fmt.Fprintf(w, "\nSources:\n")
	for i, src := range cfg.Sources {
		fmt.Fprintf(w, "  %d. [%s] %s", i+1, src.Type, src.Name)
		switch src.SourceTypeEnum() {
		case config.SourceTypeFile:
			fmt.Fprintf(w, " %s", src.Path)
			if src.Tail {
				fmt.Fprint(w, " (tail)")
			}
		case config.SourceTypeTCP, config.SourceTypeUDP:
			fmt.Fprintf(w, " %s", src.Address)
		case config.SourceTypeProcess:
			if src.Plugin != "" {
				fmt.Fprintf(w, " plugin %s", src.Plugin)
			}
		}
		fmt.Fprintln(w)
	}

	// Globs that match nothing are a warning only; the files may appear
	// before observe runs.
	expanded, err := cfg.ExpandSources(ctx)
	if err != nil {
		fmt.Fprintf(w, "\nWarning: %v\n", err)
		return nil
	}
	files := 0
	for _, src := range expanded {
		if src.SourceTypeEnum() != config.SourceTypeFile {
			continue
		}
		files++
		if src.Parser.DetectedFormat != "" {
			fmt.Fprintf(w, "  %s: detected %s\n", src.Name, src.Parser.DetectedFormat)
		}
	}
	fmt.Fprintf(w, "\nFiles matched: %d\n", files)

	return nil
}
