// Command puppy-station runs the fleet monitoring station and its client commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version is stamped by the release build with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}
