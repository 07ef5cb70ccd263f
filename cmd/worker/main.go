// Package main is the entry point of the leetsync-stats worker.
//
// The worker aggregates each user's solved problems once per calendar day
// into a daily snapshot, a lifetime rollup and a streak. It runs the batch
// on a schedule (serve) or on demand (run, user).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leetsync/leetsync-stats/cmd/worker/commands"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
