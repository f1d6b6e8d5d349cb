package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ArxivDigest/internal/app"
	"ArxivDigest/internal/config"
	"ArxivDigest/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run the digest once and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}

	if *once {
		if err := application.RunOnce(ctx); err != nil {
			logger.Error("digest run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
