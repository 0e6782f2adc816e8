package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// TextFormatter formats reports as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	_, err := fmt.Fprintf(w, "logstream: %d sources read, %d failed, %d records, %d parse errors\n",
		report.Summary.SourcesRead,
		report.Summary.SourcesFailed,
		report.Summary.TotalRecords,
		report.Summary.ParseErrors)
	return err
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	fmt.Fprintln(w, "=== logstream Session Report ===")
	fmt.Fprintln(w)

	for i := range report.Sources {
		f.formatSource(&report.Sources[i], w)
	}

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d sources, %d failed, %d records, %d attachments\n",
		report.Summary.SourcesRead,
		report.Summary.SourcesFailed,
		report.Summary.TotalRecords,
		report.Summary.TotalAttachments)

	if f.opts.Verbose {
		if report.Metadata.Store != "" {
			fmt.Fprintf(w, "Store: %s\n", report.Metadata.Store)
		}
		fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(time.Millisecond))
	}

	return nil
}

func (f *TextFormatter) formatSource(src *SourceReport, w io.Writer) {
	kind := strings.ToUpper(src.Kind)
	if kind == "" {
		kind = "SOURCE"
	}
	if src.Location != "" {
		fmt.Fprintf(w, "[%s] %s (%s)\n", kind, src.Name, src.Location)
	} else {
		fmt.Fprintf(w, "[%s] %s\n", kind, src.Name)
	}

	fmt.Fprintf(w, "  %d records, %d attachments, ended: %s\n",
		src.Records, src.Attachments, src.EndReason)

	if src.Failed() && src.EndDetail != "" {
		fmt.Fprintf(w, "  Error: %s\n", src.EndDetail)
	}
	if src.ParseErrors > 0 && !f.opts.Verbose {
		fmt.Fprintf(w, "  %d parse error(s)\n", src.ParseErrors)
	}

	if f.opts.Verbose {
		fmt.Fprintf(w, "    Loaded: %d bytes, dropped: %d bytes\n", src.LoadedBytes, src.DroppedBytes)
		fmt.Fprintf(w, "    Messages: %d parsed, %d skipped, %d parse errors\n",
			src.ParsedMsgs, src.SkippedMsgs, src.ParseErrors)
		fmt.Fprintf(w, "    Duration: %s\n", src.Duration.Round(time.Millisecond))
	}

	fmt.Fprintln(w)
}
