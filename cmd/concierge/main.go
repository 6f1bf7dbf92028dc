// Package main provides the concierge CLI entrypoint.
//
// Usage:
//
//	concierge <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: usage, config or argument error
//   - 2: agent or stream failure
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/concierge/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = func(_ *cli.Context, err error) {
		if code := exitCode(os.Stderr, err); code != 0 {
			os.Exit(code)
		}
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitCode(os.Stderr, err))
	}
}

// exitCode reports err on w and returns the process exit code, preserving
// codes from cli.Exit. Unexpected errors exit with 1.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		// cli.Exit("", N) prints as "exit status N"; nothing to show.
		if msg := exitCoder.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
