// Command cohortctl administers a running boostcalc service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/okian/boostcalc/internal/cohortctl"
	"github.com/okian/boostcalc/pkg/logger"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := logger.Init(logger.WithWriter(os.Stderr), logger.WithLevel("warn")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cohortctl.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
