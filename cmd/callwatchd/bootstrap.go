package main

import (
	"time"

	"log/slog"

	"callwatch/internal/alerts"
	"callwatch/internal/analysis"
	"callwatch/internal/config"
	"callwatch/internal/records"
	"callwatch/internal/services/analyzer"
	"callwatch/internal/services/audio"
	"callwatch/internal/services/notify"
	"callwatch/internal/stage"
)

type workerRegistrar interface {
	Register(stage.Worker)
}

func registerWorkers(reg workerRegistrar, cfg *config.Config, store *records.Store, logger *slog.Logger) {
	if reg == nil || cfg == nil {
		return
	}

	client := analyzer.NewClient(analyzer.Config{
		APIKey:         cfg.Analyzer.APIKey,
		BaseURL:        cfg.Analyzer.BaseURL,
		Model:          cfg.Analyzer.Model,
		TimeoutSeconds: cfg.Analyzer.TimeoutSeconds,
		Prompt:         cfg.Analyzer.Prompt,
	})
	fetcher := audio.NewFetcher(
		cfg.Paths.AudioTempDir,
		time.Duration(cfg.Workers.DownloadTimeoutSeconds)*time.Second,
	)

	reg.Register(analysis.NewWorker(store, client, fetcher, cfg, logger))
	reg.Register(alerts.NewWorker(store, notify.NewService(cfg), cfg, logger))
}
