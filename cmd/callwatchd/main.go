package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"callwatch/internal/config"
	"callwatch/internal/daemon"
	"callwatch/internal/logging"
	"callwatch/internal/records"
	"callwatch/internal/webhook"
	"callwatch/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := records.Open(cfg)
	if err != nil {
		logger.Error("open record store", logging.Error(err))
		return
	}

	manager := workflow.NewManager(cfg, store, logger)
	registerWorkers(manager, cfg, store, logger)

	server, err := webhook.NewServer(cfg, store, logger)
	if err != nil {
		logger.Error("build webhook server", logging.Error(err))
		_ = store.Close()
		return
	}

	d, err := daemon.New(cfg, store, logger, manager, server)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("callwatchd shutting down")
}
