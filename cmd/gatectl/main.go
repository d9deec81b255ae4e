package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/your-org/doorgate/internal/cli"
	"github.com/your-org/doorgate/internal/observability"
)

func main() {
	observability.SetupLogger(os.Getenv("DOORGATE_LOG_LEVEL"), "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
