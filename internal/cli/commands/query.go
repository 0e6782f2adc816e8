package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/logstream/pkg/store/sqlite"
)

// QueryOptions holds command-line options for the query command.
type QueryOptions struct {
	Output  string
	Source  string
	Search  string
	Offset  int
	Limit   int
	Count   bool
	Sources bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <database>",
		Short: "Query records stored by a SQLite session",
		Long: `Read records back from a SQLite session store written by observe.

Examples:
  logstream query session.db --sources
  logstream query session.db --source app --search timeout
  logstream query session.db --count --search ERROR`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Only records of this source")
	cmd.Flags().StringVar(&opts.Search, "search", "", "Case-insensitive substring filter")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip this many records")
	cmd.Flags().IntVar(&opts.Limit, "limit", sqlite.DefaultPageSize, "Maximum records to print")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "Print the number of matching records only")
	cmd.Flags().BoolVar(&opts.Sources, "sources", false, "List sources instead of records")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Output != "text" && opts.Output != "json" {
		return fmt.Errorf("unknown output format: %s (supported: text, json)", opts.Output)
	}

	if _, err := os.Stat(args[0]); err != nil {
		return fmt.Errorf("opening session database: %w", err)
	}
	db, err := sqlite.Open(sqlite.Config{Path: args[0], PoolSize: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	w := cmd.OutOrStdout()

	sources, err := db.Sources(ctx)
	if err != nil {
		return err
	}
	if opts.Sources {
		return printSources(w, sources, opts.Output)
	}

	q := sqlite.Query{Search: opts.Search, Offset: opts.Offset, Limit: opts.Limit}
	if opts.Source != "" {
		id, ok := lookupSource(sources, opts.Source)
		if !ok {
			return fmt.Errorf("unknown source: %s", opts.Source)
		}
		q.SourceID = id
	}

	if opts.Count {
		n, err := db.Count(ctx, q)
		if err != nil {
			return err
		}
		if opts.Output == "json" {
			return writeJSON(w, map[string]int64{"count": n})
		}
		fmt.Fprintln(w, n)
		return nil
	}

	records, err := db.Records(ctx, q)
	if err != nil {
		return err
	}
	return printRecords(w, records, sources, opts.Output)
}

func lookupSource(sources []sqlite.SourceInfo, name string) (uint16, bool) {
	for _, s := range sources {
		if s.Name == name {
			return s.ID, true
		}
	}
	return 0, false
}

type recordView struct {
	ID      int64    `json:"id"`
	Source  string   `json:"source"`
	Columns []string `json:"columns"`
}

func printRecords(w io.Writer, records []sqlite.Record, sources []sqlite.SourceInfo, format string) error {
	names := make(map[uint16]string, len(sources))
	for _, s := range sources {
		names[s.ID] = s.Name
	}

	if format == "json" {
		views := make([]recordView, 0, len(records))
		for _, r := range records {
			views = append(views, recordView{ID: r.ID, Source: names[r.SourceID], Columns: r.Columns()})
		}
		return writeJSON(w, views)
	}

	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\n", names[r.SourceID], strings.Join(r.Columns(), "\t"))
	}
	return nil
}

func printSources(w io.Writer, sources []sqlite.SourceInfo, format string) error {
	if format == "json" {
		type sourceView struct {
			ID       uint16 `json:"id"`
			Name     string `json:"name"`
			Kind     string `json:"kind"`
			Location string `json:"location,omitempty"`
			Records  int64  `json:"records"`
		}
		views := make([]sourceView, 0, len(sources))
		for _, s := range sources {
			views = append(views, sourceView{s.ID, s.Name, s.Kind, s.Location, s.Records})
		}
		return writeJSON(w, views)
	}

	for _, s := range sources {
		fmt.Fprintf(w, "%d\t[%s] %s\t%d records", s.ID, strings.ToUpper(s.Kind), s.Name, s.Records)
		if s.Location != "" {
			fmt.Fprintf(w, "\t%s", s.Location)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
