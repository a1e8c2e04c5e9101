// Package worker executes pipeline tasks dequeued from the broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"reframe/internal/config"
	"reframe/internal/ffmpeg"
	"reframe/internal/queue"
	"reframe/internal/storage"
	"reframe/internal/store"
)

// errCancelled aborts a pipeline when the user cancelled the job.
var errCancelled = errors.New("job cancelled by user")

// Worker runs pipelines against the store, the broker, and ffmpeg.
type Worker struct {
	store   *store.Store
	queue   *queue.Queue
	storage storage.Backend
	runner  ffmpeg.Runner
	client  *http.Client
	started time.Time
}

// New builds a worker with the default ffmpeg runner.
func New(st *store.Store, q *queue.Queue, backend storage.Backend) *Worker {
	return &Worker{
		store:   st,
		queue:   q,
		storage: backend,
		runner:  ffmpeg.ExecRunner{},
		client:  &http.Client{Timeout: 10 * time.Minute},
		started: time.Now().UTC(),
	}
}

// NewWithRunner injects a runner (for testing).
func NewWithRunner(st *store.Store, q *queue.Queue, backend storage.Backend, runner ffmpeg.Runner) *Worker {
	w := New(st, q, backend)
	w.runner = runner
	return w
}

// Handle dispatches one task. Pipeline errors are absorbed into the job
// record; only infrastructure errors are returned.
func (w *Worker) Handle(ctx context.Context, task *queue.Task) error {
	switch task.Name {
	case queue.TaskPing:
		hostname, _ := os.Hostname()
		return w.queue.Reply(ctx, task, map[string]any{"pong": true, "hostname": hostname})
	case queue.TaskSystemInfo:
		return w.queue.Reply(ctx, task, w.systemInfo())
	}

	pipeline, ok := w.pipelines()[task.Name]
	if !ok {
		w.queue.FailTask(ctx, task, "unknown task: "+task.Name)
		return fmt.Errorf("unknown task: %s", task.Name)
	}

	job, err := w.store.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", task.JobID, err)
	}
	if job.Status.Terminal() {
		slog.Info("Skipping terminal job", "job_id", job.ID, "status", job.Status)
		return nil
	}

	running := store.JobRunning
	if _, err := w.store.UpdateJob(ctx, job.ID, store.JobUpdate{Status: &running}); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	slog.Info("Pipeline started", "job_id", job.ID, "task", task.Name)
	result, err := pipeline(ctx, job, task.Args)
	switch {
	case errors.Is(err, errCancelled):
		slog.Info("Pipeline cancelled", "job_id", job.ID)
		return nil
	case err != nil:
		slog.Error("Pipeline failed", "job_id", job.ID, "task", task.Name, "error", err)
		failed := store.JobFailed
		message := err.Error()
		w.store.UpdateJob(ctx, job.ID, store.JobUpdate{Status: &failed, Error: &message})
		w.queue.FailTask(ctx, task, message)
		return nil
	}

	completed := store.JobCompleted
	update := store.JobUpdate{Status: &completed, Payload: result.payload}
	if result.outputAssetID != "" {
		update.OutputAssetID = &result.outputAssetID
	}
	if _, err := w.store.UpdateJob(ctx, job.ID, update); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	slog.Info("Pipeline completed", "job_id", job.ID, "task", task.Name)
	return nil
}

// pipelineResult is what a pipeline hands back on success.
type pipelineResult struct {
	outputAssetID string
	payload       map[string]any
}

type pipelineFunc func(ctx context.Context, job store.Job, args map[string]any) (pipelineResult, error)

func (w *Worker) pipelines() map[string]pipelineFunc {
	return map[string]pipelineFunc{
		queue.TaskGenerateCaptions:      w.runCaptions,
		queue.TaskTranslateSubtitles:    w.runTranslate,
		queue.TaskRenderStyledSubtitles: w.runStyle,
		queue.TaskGenerateShorts:        w.runShorts,
		queue.TaskMergeVideoAudio:       w.runMerge,
		queue.TaskCutClip:               w.runCutClip,
	}
}

func (w *Worker) systemInfo() map[string]any {
	hostname, _ := os.Hostname()
	return map[string]any{
		"hostname":        hostname,
		"go_version":      runtime.Version(),
		"num_cpu":         runtime.NumCPU(),
		"uptime_seconds":  int(time.Since(w.started).Seconds()),
		"storage_backend": w.storage.Name(),
		"offline_mode":    config.OfflineMode(),
	}
}
