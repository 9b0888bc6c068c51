package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fmristage/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(services.ExitStatus(err))
	}
}
