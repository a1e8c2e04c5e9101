package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reframe/internal/cleanup"
	"reframe/internal/config"
	"reframe/internal/queue"
	"reframe/internal/storage"
	"reframe/internal/store"
	"reframe/internal/worker"
)

func main() {
	setupLogging()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	st, err := store.Open(ctx, config.DatabaseURL)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	taskQueue, err := queue.NewQueue(ctx)
	if err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer taskQueue.Close()

	backend, err := storage.New(ctx)
	if err != nil {
		slog.Error("Failed to set up storage backend", "error", err)
		os.Exit(1)
	}

	proc := worker.New(st, taskQueue, backend)
	sweeper := cleanup.New(st, config.MediaRoot, time.Duration(config.CleanupTTLHours)*time.Hour)

	cleanupTicker := time.NewTicker(time.Duration(config.CleanupIntervalSeconds) * time.Second)
	defer cleanupTicker.Stop()

	slog.Info("Worker started, waiting for tasks...", "storage", backend.Name())

	// Main worker loop
	for {
		select {
		case <-ctx.Done():
			slog.Info("Context cancelled, shutting down")
			return
		case sig := <-sigChan:
			slog.Info("Received signal, shutting down gracefully", "signal", sig)
			cancel()
			return
		case <-cleanupTicker.C:
			slog.Info("Running scheduled cleanup")
			sweeper.Run(ctx)
		default:
			// Dequeue task (blocks until available or timeout)
			task, err := taskQueue.Dequeue(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				slog.Error("Failed to dequeue task", "error", err)
				continue
			}
			if task == nil {
				// Timeout, no task available - loop continues
				continue
			}

			if err := proc.Handle(ctx, task); err != nil {
				slog.Error("Task handling failed", "error", err, "task_id", task.ID)
			}
		}
	}
}

func setupLogging() {
	opts := &slog.HandlerOptions{Level: config.SlogLevel()}
	var handler slog.Handler
	if config.LogFormat == "plain" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
