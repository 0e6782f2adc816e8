package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ccollicutt/logstream/pkg/config"
	"github.com/ccollicutt/logstream/pkg/detector"
)

func syslogMatch(t *testing.T) *detector.Match {
	t.Helper()
	result := detector.New().DetectLines([]string{
		"Jun 14 15:16:01 combo sshd[19939]: Connection closed",
		"Jun 14 15:16:02 combo sshd[19939]: Accepted password",
	})
	best := result.Best()
	if best == nil {
		t.Fatal("Expected to detect a format")
	}
	return best
}

func TestGenerateStarterConfig(t *testing.T) {
	data, err := generateStarterConfig("/var/log/test.log", syslogMatch(t))
	if err != nil {
		t.Fatalf("generateStarterConfig() error = %v", err)
	}
	out := string(data)

	checks := []string{
		"# Detected format: Syslog (BSD) (100% confidence)",
		"sources:",
		"name: test",
		"path: /var/log/test.log",
		"timestamp_pattern:",
		"timestamp_layout:",
		"Jan 2 15:04:05",
		"type: sqlite",
	}
	for _, check := range checks {
		if !strings.Contains(out, check) {
			t.Errorf("Config missing %q:\n%s", check, out)
		}
	}
}

func TestWriteStarterConfig_Loads(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "logstream.yaml")

	result := &detector.Result{Matches: []detector.Match{*syslogMatch(t)}, Sampled: 2, Parsed: 2}
	if err := writeStarterConfig(result, "/var/log/test.log", configPath); err != nil {
		t.Fatalf("writeStarterConfig() error = %v", err)
	}

	cfg, err := config.Load(context.Background(), configPath)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Parser.CompiledTimestampPattern() == nil {
		t.Errorf("generated source = %+v", cfg.Sources)
	}
}

func TestWriteStarterConfig_NoOverwrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "existing.yaml")
	writeFile(t, configPath, "original content")

	result := &detector.Result{Matches: []detector.Match{*syslogMatch(t)}}
	err := writeStarterConfig(result, "/var/log/test.log", configPath)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}

	content, _ := os.ReadFile(configPath)
	if string(content) != "original content" {
		t.Error("Existing file was modified")
	}
}

func TestWriteStarterConfig_NoMatch(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test.yaml")

	err := writeStarterConfig(&detector.Result{}, "/var/log/test.log", configPath)
	if err == nil || !strings.Contains(err.Error(), "no timestamp format detected") {
		t.Errorf("Expected 'no timestamp format detected' error, got: %v", err)
	}
}

func TestDetectOptions_Defaults(t *testing.T) {
	cmd := NewDetectCommand()

	output, _ := cmd.Flags().GetString("output")
	if output != "text" {
		t.Errorf("Expected default output 'text', got %q", output)
	}

	sample, _ := cmd.Flags().GetInt("sample")
	if sample != detector.DefaultSampleLines {
		t.Errorf("Expected default sample %d, got %d", detector.DefaultSampleLines, sample)
	}

	writeConfig, _ := cmd.Flags().GetString("write-config")
	if writeConfig != "" {
		t.Errorf("Expected default write-config '', got %q", writeConfig)
	}
}

func TestRunDetect(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")
	writeFile(t, logPath, "2024-01-15T10:30:00Z start\n2024-01-15T10:30:05Z ready\n")

	cmd := NewDetectCommand()
	cmd.SetArgs([]string{logPath})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	for _, want := range []string{"Detected Format: ISO 8601 with Z (UTC)", "timestamp_layout: \"2006-01-02T15:04:05Z\""} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}

	cmd = NewDetectCommand()
	cmd.SetArgs([]string{"-o", "json", logPath})
	buf.Reset()
	cmd.SetOut(&buf)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	var out JSONOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out.Matches) != 1 || out.SampledLines != 2 || out.ParsedLines != 2 {
		t.Errorf("JSON output = %+v", out)
	}
}

func TestRunDetect_MissingFile(t *testing.T) {
	cmd := NewDetectCommand()
	cmd.SetArgs([]string{"/nonexistent/app.log"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "log file not found") {
		t.Errorf("Expected 'log file not found' error, got: %v", err)
	}
}
