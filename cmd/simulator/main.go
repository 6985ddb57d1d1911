package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"recruit-inbox/internal/config"
	"recruit-inbox/internal/logger"
	"recruit-inbox/simulator"
)

func main() {
	if _, err := logger.Setup(&config.LoggerConfig{Level: "INFO", Format: "text"}); err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	cfg := simulator.DefaultSimConfig()
	cfg.NumClubs = 20
	cfg.NumAthletes = 500
	cfg.Workers = 16
	cfg.Operations = 2000

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	slog.Info("Starting simulation",
		"clubs", cfg.NumClubs,
		"athletes", cfg.NumAthletes,
		"workers", cfg.Workers,
		"operationsPerWorker", cfg.Operations,
		"zipf", cfg.ZipfS,
		"hideResurrection", cfg.Inbox.HideResurrection,
	)

	report, err := simulator.NewSimulator(cfg).Run(ctx)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	slog.Info("Simulation completed",
		"duration", report.Duration,
		"sent", report.Sent,
		"reads", report.Reads,
		"hides", report.Hides,
		"failed", report.Failed,
		"threads", report.Threads,
		"unread", report.Unread,
		"delivered", report.Relay.Delivered,
		"suppressed", report.Relay.Suppressed,
		"dropped", report.Relay.Dropped,
	)
	for _, v := range report.Violations {
		slog.Error("Invariant violated", "detail", v)
	}
	if !report.OK() {
		os.Exit(1)
	}
}
