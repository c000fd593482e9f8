package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dvloznov/points-exporter/cmd/exporter/commands"
)

func main() {
	// Cancel in-flight batches on interrupt so the watermark is left untouched.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
