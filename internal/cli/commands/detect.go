package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/logstream/pkg/config"
	"github.com/ccollicutt/logstream/pkg/detector"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	SampleSize  int
	ShowAll     bool
	WriteConfig string
}

// NewDetectCommand creates the detect command.
func NewDetectCommand() *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>",
		Short: "Detect the timestamp format of a log file",
		Long: `Sample a log file and test it against common timestamp formats.

Prints the best format with its confidence and a source configuration
snippet using it. With --write-config a starter configuration reading the
file into a SQLite store is written.

Example:
  logstream detect /var/log/myapp.log
  logstream detect --sample 500 /var/log/large.log
  logstream detect -w logstream.yaml /var/log/app.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().IntVarP(&opts.SampleSize, "sample", "n", detector.DefaultSampleLines, "Number of lines to sample")
	cmd.Flags().BoolVar(&opts.ShowAll, "all", false, "Show all detected formats, not just the best match")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter config to file (will not overwrite)")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, opts *DetectOptions) error {
	logFile := args[0]
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	w := cmd.OutOrStdout()

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s", logFile)
	}

	d := detector.New(detector.WithSampleSize(opts.SampleSize))
	result, err := d.DetectFile(ctx, logFile)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if opts.WriteConfig != "" {
		if err := writeStarterConfig(result, logFile, opts.WriteConfig); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote starter config to: %s\n\n", opts.WriteConfig)
	}

	switch opts.Output {
	case "json":
		return outputDetectJSON(w, result, logFile, opts)
	default:
		return outputDetectText(w, result, logFile, opts)
	}
}

func outputDetectText(w io.Writer, result *detector.Result, logFile string, opts *DetectOptions) error {
	fmt.Fprintln(w, "=== Timestamp Format Detection ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "File: %s\n", logFile)
	fmt.Fprintf(w, "Lines sampled: %d\n", result.Sampled)
	fmt.Fprintf(w, "Lines with timestamps: %d\n", result.Parsed)
	fmt.Fprintln(w)

	best := result.Best()
	if best == nil {
		fmt.Fprintln(w, "No timestamp format detected.")
		fmt.Fprintln(w, "The file will be read as plain lines; set parser.timestamp_pattern by hand if needed.")
		return nil
	}

	fmt.Fprintf(w, "Detected Format: %s\n", best.Format.Name)
	fmt.Fprintf(w, "Confidence: %.1f%% (%d/%d lines matched)\n",
		best.Confidence*100, best.Lines, result.Sampled)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sample match:\n  %s\n", best.Sample)
	fmt.Fprintf(w, "Parsed as: %s\n", best.Parsed.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(w)

	if best.Format.Ambiguous {
		fmt.Fprintln(w, "WARNING: This format has date ordering ambiguity (MM/DD vs DD/MM).")
		fmt.Fprintln(w, `For DD/MM/YYYY use timestamp_layout: "02/01/2006 15:04:05".`)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "--- Source snippet ---")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "    parser:")
	fmt.Fprintf(w, "      timestamp_pattern: '%s'\n", best.Format.Pattern)
	fmt.Fprintf(w, "      timestamp_layout: \"%s\"\n", best.Format.Layout)
	fmt.Fprintln(w)

	if opts.ShowAll && len(result.Matches) > 1 {
		fmt.Fprintln(w, "--- Alternative formats detected ---")
		for i, m := range result.Matches[1:] {
			fmt.Fprintf(w, "%d. %s (%.1f%% confidence)\n", i+2, m.Format.Name, m.Confidence*100)
			fmt.Fprintf(w, "   timestamp_pattern: '%s'\n", m.Format.Pattern)
			fmt.Fprintf(w, "   timestamp_layout: \"%s\"\n", m.Format.Layout)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// JSONMatch represents a format match in JSON output.
type JSONMatch struct {
	Name       string  `json:"name"`
	Pattern    string  `json:"pattern"`
	Layout     string  `json:"layout"`
	Confidence float64 `json:"confidence"`
	MatchCount int     `json:"match_count"`
	SampleLine string  `json:"sample_line"`
	Ambiguous  bool    `json:"ambiguous,omitempty"`
}

// JSONOutput represents the full JSON output.
type JSONOutput struct {
	File         string      `json:"file"`
	Matches      []JSONMatch `json:"matches"`
	SampledLines int         `json:"sampled_lines"`
	ParsedLines  int         `json:"parsed_lines"`
}

func outputDetectJSON(w io.Writer, result *detector.Result, logFile string, opts *DetectOptions) error {
	out := JSONOutput{
		File:         logFile,
		SampledLines: result.Sampled,
		ParsedLines:  result.Parsed,
		Matches:      make([]JSONMatch, 0),
	}

	matches := result.Matches
	if !opts.ShowAll && len(matches) > 1 {
		matches = matches[:1]
	}
	for _, m := range matches {
		out.Matches = append(out.Matches, JSONMatch{
			Name:       m.Format.Name,
			Pattern:    m.Format.Pattern,
			Layout:     m.Format.Layout,
			Confidence: m.Confidence,
			MatchCount: m.Lines,
			SampleLine: m.Sample,
			Ambiguous:  m.Format.Ambiguous,
		})
	}

	return writeJSON(w, out)
}

// writeStarterConfig writes a configuration that reads logFile with the
// detected format. Existing files are never overwritten.
func writeStarterConfig(result *detector.Result, logFile, configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s (will not overwrite)", configPath)
	}

	best := result.Best()
	if best == nil {
		return fmt.Errorf("cannot generate config: no timestamp format detected")
	}

	data, err := generateStarterConfig(logFile, best)
	if err != nil {
		return err
	}

	// #nosec G306 - config file doesn't need restrictive permissions
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func generateStarterConfig(logFile string, match *detector.Match) ([]byte, error) {
	absLogFile := logFile
	if abs, err := filepath.Abs(logFile); err == nil {
		absLogFile = abs
	}

	name := filepath.Base(absLogFile)
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = name[:len(name)-len(ext)]
	}

	cfg := config.Config{
		Store: config.StoreConfig{Type: config.StoreTypeSQLite, Path: config.DefaultSQLitePath},
		Sources: []config.SourceConfig{{
			Name: name,
			Type: string(config.SourceTypeFile),
			Path: absLogFile,
			Parser: config.ParserConfig{
				TimestampPattern: match.Format.Pattern,
				TimestampLayout:  match.Format.Layout,
			},
		}},
	}

	body, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	header := fmt.Sprintf("# logstream configuration\n# Generated by: logstream detect\n# Detected format: %s (%.0f%% confidence)\n\n",
		match.Format.Name, match.Confidence*100)
	return append([]byte(header), body...), nil
}
