// logstream streams log sources into a session store.
//
// Sources are read concurrently, parsed into records and written to SQLite
// or compressed session files, and a per-source report is printed at the end.
package main

import (
	"os"

	"github.com/ccollicutt/logstream/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
