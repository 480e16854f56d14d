package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"oncocentre/cmd/oncocentre/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", commands.Describe(err))
		os.Exit(1)
	}
}
