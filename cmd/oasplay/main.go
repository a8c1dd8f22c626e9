package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"oasplay/internal/cli"
	"oasplay/internal/logging"
)

func main() {
	log := logging.New(os.Stderr, "info", true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.New(log, os.Stdin)
	if err := app.ExecuteContext(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Error().Err(err).Msg("oasplay failed")
		stop()
		os.Exit(1)
	}
}
