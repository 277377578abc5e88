// Package main runs the boardsync server: the REST and websocket surface of
// the realtime kanban collaboration engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kanbanlab/boardsync/internal/app/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "boardsync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app, err := runtime.NewApplication()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		return err
	}
	return app.Shutdown(context.Background())
}
