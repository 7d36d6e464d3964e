package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/config"
	"github.com/codeintel-dev/codeintel-engine/internal/engine"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

func main() {
	repoPath, err := os.Getwd()
	if err != nil {
		log.Fatalf("Failed to get current directory: %v", err)
	}
	if len(os.Args) > 1 {
		repoPath = os.Args[1]
	}

	slog.Info("Starting repository indexing", "repository", repoPath)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slog.Info("Configuration loaded",
		"provider", cfg.Embedding.DefaultProvider,
		"batch_size", cfg.Embedding.BatchSize,
		"workers", cfg.WorkerPool.WorkerCount,
		"vector_backend", cfg.VectorDB.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("Initializing engine")
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Close()
	slog.Info("Engine ready")

	go func() {
		if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler exited", "error", err)
		}
	}()

	abs, err := filepath.Abs(repoPath)
	if err != nil {
		abs = repoPath
	}
	codebaseID := filepath.Base(abs)
	eng.RegisterCodebase(codebaseID, filepath.Base(abs), abs)

	slog.Info("Starting indexing process")
	startTime := time.Now()

	job, err := eng.SubmitIndex(codebaseID, models.JobFullIndex, models.PriorityHigh, nil, true, true)
	if err != nil {
		log.Fatalf("Failed to start indexing: %v", err)
	}

	if err := eng.WaitForJob(ctx, job, 200*time.Millisecond); err != nil {
		log.Fatalf("Indexing did not complete: %v", err)
	}

	duration := time.Since(startTime)
	snap := job.Snapshot()

	if snap.Status == models.JobFailed {
		slog.Error("Indexing failed",
			"error", snap.Error,
			"job_id", job.ID,
			"repository", repoPath,
			"files_total", snap.Progress.TotalItems,
			"files_processed", snap.Progress.ProcessedItems,
			"files_failed", snap.Progress.FailedItems,
			"duration", duration)
		os.Exit(1)
	}

	slog.Info("Indexing completed successfully",
		"job_id", job.ID,
		"status", snap.Status,
		"repository", repoPath,
		"files_total", snap.Progress.TotalItems,
		"files_processed", snap.Progress.ProcessedItems,
		"files_failed", snap.Progress.FailedItems,
		"files_skipped", snap.Progress.SkippedItems,
		"duration", duration)
}
