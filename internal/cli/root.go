// Package cli provides the command-line interface for logstream.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/logstream/internal/cli/commands"
	"github.com/ccollicutt/logstream/internal/cli/plugins"
)

// Execute runs the root command and returns the exit code.
func Execute() int {
	return run(os.Args[1:], os.Stderr)
}

// run dispatches args to a built-in command or, for unknown commands, to
// a logstream-<command> plugin. Exit codes: 0 ok, 1 a source failed, 2
// configuration or runtime error.
func run(args []string, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)

	name, external := externalCommand(rootCmd, args)
	if external {
		if pluginPath, err := plugins.FindPlugin(name); err == nil {
			return plugins.Execute(pluginPath, args[1:])
		}
	}

	if err := rootCmd.Execute(); err != nil {
		if external {
			_, _ = fmt.Fprintln(stderr, plugins.FormatNotFoundError(name))
			return 2
		}
		// SilenceErrors keeps cobra from printing this itself.
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return commands.ExitCode
}

// externalCommand returns the first argument when it names a command
// that is not built in.
func externalCommand(rootCmd *cobra.Command, args []string) (string, bool) {
	if len(args) == 0 || args[0] == "" || args[0][0] == '-' {
		return "", false
	}
	if isBuiltinCommand(rootCmd, args[0]) {
		return "", false
	}
	return args[0], true
}

// isBuiltinCommand checks if a command name is a built-in cobra command.
func isBuiltinCommand(rootCmd *cobra.Command, name string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == name || cmd.HasAlias(name) {
			return true
		}
	}
	// Also check for special commands like help and completion
	return name == "help" || name == "completion"
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "logstream",
		Short: "Stream log sources into a queryable session store",
		Long: `logstream reads log data from files, stdin, network sockets and child
processes, parses it into records and writes them to a session store.

Sources are described in a YAML configuration file. Each source gets its
own parser (newline text or CBOR frames) and ends independently; a
summary of every source is printed when the session finishes.

PLUGINS:
  Subcommands that are not built in are looked up as standalone binaries
  named logstream-<command>. Process sources may also name a plugin
  binary logstream-source-<name> instead of a command line.

  Plugin locations (searched in order):
    1. Same directory as the logstream binary
    2. ~/.logstream/plugins/
    3. Anywhere in PATH`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add subcommands
	rootCmd.AddCommand(commands.NewObserveCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewDetectCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
