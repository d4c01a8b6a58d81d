package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arijanluiken/tradescript/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Run(ctx, os.Stdout, os.Stderr, os.Exit, os.Args[1:]...); err != nil {
		switch {
		case err == cli.ErrScriptFailed:
			// diagnostics were already printed
		case errors.Is(err, cli.ErrScriptFailed):
			fmt.Fprintln(os.Stderr, err)
		default:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
