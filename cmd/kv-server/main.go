package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/loganszeto/sharedstate/internal/daemon"
	"github.com/loganszeto/sharedstate/internal/loggingutil"
)

func main() {
	os.Exit(submain())
}

func submain() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := loggingutil.New(ctx, "kv-server", os.Stderr)
	cmd := daemon.NewCommand(daemon.KV(), logger)
	if err := cmd.ExecuteContext(ctx); err != nil {
		loggingutil.WithSubsystem(logger, "cli.root").Error("command failed", "error", err)
		return 1
	}
	return 0
}
