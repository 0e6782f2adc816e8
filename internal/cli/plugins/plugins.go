// Package plugins provides exec-based plugin support for logstream.
//
// Two kinds of plugins exist. Command plugins are binaries named
// logstream-<command> that are executed when an unknown command is
// invoked. Source plugins are binaries named logstream-source-<name> that
// a process source runs and reads log data from.
//
// This follows the same pattern used by kubectl and git for plugins.
package plugins

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Prefix is prepended to every plugin binary name.
const Prefix = "logstream-"

// SourcePrefix is prepended to source plugin names.
const SourcePrefix = "source-"

// ErrPluginNotFound is returned when no plugin binary can be located.
var ErrPluginNotFound = errors.New("plugin not found")

// Dirs lists the directories searched before PATH, in order: the
// directory of the running binary and ~/.logstream/plugins.
func Dirs() []string {
	var dirs []string
	if execPath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(execPath))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homeDir, ".logstream", "plugins"))
	}
	return dirs
}

// FindPlugin searches for a plugin binary named logstream-<command>.
// It searches in the following locations in order:
//  1. Same directory as the logstream binary
//  2. ~/.logstream/plugins/
//  3. Anywhere in PATH
//
// Returns the full path to the plugin binary if found.
func FindPlugin(command string) (string, error) {
	pluginName := Prefix + command

	for _, dir := range Dirs() {
		candidate := filepath.Join(dir, pluginName)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(pluginName); err == nil {
		return path, nil
	}

	return "", ErrPluginNotFound
}

// FindSourcePlugin locates logstream-source-<name>.
func FindSourcePlugin(name string) (string, error) {
	path, err := FindPlugin(SourcePrefix + name)
	if err != nil {
		return "", fmt.Errorf("source plugin %q: %w", name, err)
	}
	return path, nil
}

// Execute runs a plugin with the given arguments.
// It connects stdin, stdout, and stderr to the plugin process
// and returns the plugin's exit code.
func Execute(pluginPath string, args []string) int {
	cmd := exec.Command(pluginPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Error executing plugin: %v\n", err)
		return 1
	}

	return 0
}

// FormatNotFoundError returns a helpful error message when a plugin is not found.
func FormatNotFoundError(command string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "unknown command %q for \"logstream\"\n", command)
	sb.WriteString("\nIf this is a plugin, install the binary as one of:\n")

	fmt.Fprintf(&sb, "  - %s%s in the same directory as logstream\n", Prefix, command)
	fmt.Fprintf(&sb, "  - ~/.logstream/plugins/%s%s\n", Prefix, command)
	fmt.Fprintf(&sb, "  - %s%s anywhere in your PATH\n", Prefix, command)

	sb.WriteString("\nRun 'logstream --help' for usage.")

	return sb.String()
}

// isExecutable checks if a file exists and is executable.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	if info.Mode().IsRegular() {
		return info.Mode()&0111 != 0
	}

	return false
}
