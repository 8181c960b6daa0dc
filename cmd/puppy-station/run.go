package main

import (
	"context"
	"fmt"
	"io"

	"github.com/buppyai/puppy-station/internal/cli"
)

// Run executes the CLI with args and returns the process exit code. Errors are written to
// stderr except for a wrapped command's non-zero exit, which already spoke for itself.
func Run(ctx context.Context, args []string, stderr io.Writer) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	root.SetErr(stderr)
	root.SilenceErrors = true
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	code := cli.ExitCode(err)
	if !cli.IsCommandExit(err) {
		_, _ = fmt.Fprintf(stderr, "puppy-station: %v\n", err)
	}
	return code
}
