package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"prodir/internal/platform/config"
	"prodir/internal/platform/httpserver"
	"prodir/internal/platform/logger"
)

// main loads configuration, wires the service graph and runs the HTTP
// server next to the audit worker until SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	srv := httpserver.New(cfg.Addr, app.router, cfg.ReadHeaderTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout, log)
	})
	if app.auditWorker != nil {
		g.Go(func() error {
			return app.auditWorker.Run(gctx)
		})
	}

	log.Info("prodir started", "addr", cfg.Addr, "store", cfg.Store)
	if err := g.Wait(); err != nil {
		log.Error("prodir stopped with error", "error", err)
		return err
	}
	log.Info("prodir stopped")
	return nil
}
