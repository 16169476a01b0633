package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/estatesync/internal/cli"
	"github.com/dmitrijs2005/estatesync/internal/config"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cfg := config.LoadConfig(args)

	code := cli.Main(ctx, cfg, args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)

}
