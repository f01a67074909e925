package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"brickcat/internal/api"
	"brickcat/internal/config"
	"brickcat/internal/enrich"
	"brickcat/internal/logger"
	"brickcat/internal/scraper"
	"brickcat/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	must(err)
	defer func() { _ = log.Sync() }()

	db, err := storage.Open(cfg)
	must(err)
	defer db.Close()

	engine, err := enrich.NewEngine(cfg, scraper.NewClient(cfg, log), log)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(api.NewServer(cfg, db, engine, log).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
