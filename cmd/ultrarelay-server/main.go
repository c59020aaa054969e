package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay"
	"github.com/hubenschmidt/ultrarelay/config"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml when present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := ultrarelay.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("starting ultrarelay", zap.Int("port", cfg.Server.Port))

	if err := app.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		app.Close()
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}
