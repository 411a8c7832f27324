package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"meetcap/internal/bootstrap"
	"meetcap/internal/cli"
	"meetcap/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(nil)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer services.Close(context.WithoutCancel(ctx))

	deps := &cli.Dependencies{
		Config:   services.Config,
		Catalog:  services.Catalog,
		Recorder: services.Controller,
		Meetings: services.Engine,
	}
	if services.API != nil {
		deps.API = services.API
	}

	return cli.NewRootCmd(deps).ExecuteContext(ctx)
}
