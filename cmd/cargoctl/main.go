package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, newRootCmd(defaultDeps()), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "cargoctl:", err)
		cancel()
		os.Exit(1)
	}
}
