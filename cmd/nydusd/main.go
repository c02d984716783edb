// Package main is the entry point for the Nydus fleet-auth daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/crutech/nydus/cmd/nydusd/app"
	"github.com/crutech/nydus/pkg/logger"
)

func main() {
	logger.Initialize()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
