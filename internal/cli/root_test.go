package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	if root.Use != "logstream" {
		t.Errorf("Use = %q, want logstream", root.Use)
	}
	for _, name := range []string{"observe", "query", "detect", "validate", "version"} {
		if !isBuiltinCommand(root, name) {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestIsBuiltinCommand(t *testing.T) {
	root := NewRootCommand()

	tests := []struct {
		name string
		want bool
	}{
		{"observe", true},
		{"help", true},
		{"completion", true},
		{"watch", false},
	}
	for _, tt := range tests {
		if got := isBuiltinCommand(root, tt.name); got != tt.want {
			t.Errorf("isBuiltinCommand(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExternalCommand(t *testing.T) {
	root := NewRootCommand()

	tests := []struct {
		args []string
		want string
		ok   bool
	}{
		{nil, "", false},
		{[]string{"--help"}, "", false},
		{[]string{"observe", "config.yaml"}, "", false},
		{[]string{"watch", "config.yaml"}, "watch", true},
	}
	for _, tt := range tests {
		got, ok := externalCommand(root, tt.args)
		if got != tt.want || ok != tt.ok {
			t.Errorf("externalCommand(%v) = %q, %v, want %q, %v", tt.args, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PATH", t.TempDir())

	var stderr bytes.Buffer
	if code := run([]string{"no-such-command"}, &stderr); code != 2 {
		t.Errorf("run() = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "no-such-command") {
		t.Errorf("stderr = %q, want plugin not found message", stderr.String())
	}
}

func TestRun_Version(t *testing.T) {
	if code := run([]string{"version"}, &bytes.Buffer{}); code != 0 {
		t.Errorf("run(version) = %d, want 0", code)
	}
}
