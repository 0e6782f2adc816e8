package output

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ccollicutt/logstream/pkg/session"
)

func TestNewJSONFormatter(t *testing.T) {
	f := NewJSONFormatter(FormatOptions{})
	if f == nil {
		t.Fatal("NewJSONFormatter() returned nil")
	}
	if f.Name() != "json" {
		t.Errorf("Name() = %q, want %q", f.Name(), "json")
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	f := NewJSONFormatter(FormatOptions{})
	report := createTestReport()

	var buf bytes.Buffer
	err := f.Format(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var parsed Report
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if parsed.Summary.SourcesRead != 2 {
		t.Errorf("SourcesRead = %d, want 2", parsed.Summary.SourcesRead)
	}
	if len(parsed.Sources) != 2 {
		t.Fatalf("len(Sources) = %d, want 2", len(parsed.Sources))
	}
	if parsed.Sources[1].EndReason != session.EndSourceError {
		t.Errorf("Sources[1].EndReason = %q, want %q", parsed.Sources[1].EndReason, session.EndSourceError)
	}
	if parsed.Metadata.ConfigFile != "test.yaml" {
		t.Errorf("ConfigFile = %q, want test.yaml", parsed.Metadata.ConfigFile)
	}
}

func TestJSONFormatter_Format_OmitsEmptyDetail(t *testing.T) {
	f := NewJSONFormatter(FormatOptions{})

	var buf bytes.Buffer
	if err := f.Format(context.Background(), createTestReport(), &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if got := strings.Count(buf.String(), `"EndDetail"`); got != 1 {
		t.Errorf("EndDetail appears %d times, want 1", got)
	}
}

func TestJSONFormatter_Format_Quiet(t *testing.T) {
	f := NewJSONFormatter(FormatOptions{Quiet: true})
	report := createTestReport()

	var buf bytes.Buffer
	err := f.Format(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var parsed Summary
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if parsed.TotalRecords != 42 {
		t.Errorf("TotalRecords = %d, want 42", parsed.TotalRecords)
	}
	if strings.Contains(buf.String(), "Sources\"") {
		t.Error("Quiet output should not include per-source entries")
	}
}

func TestJSONFormatter_Format_Empty(t *testing.T) {
	f := NewJSONFormatter(FormatOptions{})
	report := NewReport(nil, Metadata{})

	var buf bytes.Buffer
	err := f.Format(context.Background(), report, &buf)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var parsed Report
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if len(parsed.Sources) != 0 {
		t.Errorf("len(Sources) = %d, want 0", len(parsed.Sources))
	}
}
