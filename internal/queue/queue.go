// Package queue is the Redis task broker between the API and the worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reframe/internal/config"
)

const (
	// WaitingQueue is the Redis list key tasks are pushed onto.
	WaitingQueue = "reframe:waiting"
	// FailedQueueName keeps tasks whose pipeline errored, for inspection.
	FailedQueueName = "reframe:failed"
	// ControlQueue carries ping and system_info requests to the worker.
	ControlQueue = "reframe:control"
	// BlockTimeout is how long BRPOP will wait for a task.
	BlockTimeout = 5 * time.Second
	// FailedTaskTTL is how long failed tasks are kept in Redis.
	FailedTaskTTL = 30 * time.Minute
	// ControlReplyTTL bounds how long an unread control reply lingers.
	ControlReplyTTL = 30 * time.Second
	// progressKeyPrefix namespaces per-job progress events.
	progressKeyPrefix = "reframe:progress:"
	// ProgressTTL bounds how long a progress event outlives its last update.
	ProgressTTL = time.Hour
)

// Task names the worker dispatches on.
const (
	TaskGenerateCaptions      = "tasks.generate_captions"
	TaskTranslateSubtitles    = "tasks.translate_subtitles"
	TaskRenderStyledSubtitles = "tasks.render_styled_subtitles"
	TaskGenerateShorts        = "tasks.generate_shorts"
	TaskMergeVideoAudio       = "tasks.merge_video_audio"
	TaskCutClip               = "tasks.cut_clip"
	TaskPing                  = "tasks.ping"
	TaskSystemInfo            = "tasks.system_info"
)

// Task is one unit of work for the worker.
type Task struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	JobID      string         `json:"job_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	ReplyKey   string         `json:"reply_key,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	FailReason string         `json:"fail_reason,omitempty"`
}

// Queue manages the Redis task lists.
type Queue struct {
	client *redis.Client
}

// NewQueue connects to the broker named by BROKER_URL.
func NewQueue(ctx context.Context) (*Queue, error) {
	opts, err := redis.ParseURL(config.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}
	slog.Debug("Connecting to Redis broker", "addr", opts.Addr)

	client := redis.NewClient(opts)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Redis broker initialized", "addr", opts.Addr)
	return &Queue{client: client}, nil
}

// NewQueueWithClient wraps an existing Redis client (for testing).
func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes a task onto the waiting list and returns its task id.
func (q *Queue) Enqueue(ctx context.Context, task *Task) (string, error) {
	if q.client == nil {
		return "", fmt.Errorf("queue is not connected")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, WaitingQueue, taskJSON).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	slog.Info("Task enqueued", "task_id", task.ID, "name", task.Name, "job_id", task.JobID)
	return task.ID, nil
}

// Dequeue blocks for up to BlockTimeout and returns the next task, or nil
// when none arrived. Control tasks take priority over pipeline tasks.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	if q.client == nil {
		return nil, fmt.Errorf("queue is not connected")
	}

	result, err := q.client.BRPop(ctx, BlockTimeout, ControlQueue, WaitingQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BRPOP returns [key, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid BRPOP result: %v", result)
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	slog.Info("Task dequeued", "task_id", task.ID, "name", task.Name, "job_id", task.JobID)
	return &task, nil
}

// FailTask records a task on the failed list with a reason.
func (q *Queue) FailTask(ctx context.Context, task *Task, reason string) error {
	if q.client == nil {
		return fmt.Errorf("queue is not connected")
	}
	task.FailReason = reason

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal failed task: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.LPush(ctx, FailedQueueName, taskJSON)
	pipe.Expire(ctx, FailedQueueName, FailedTaskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record failed task: %w", err)
	}

	slog.Warn("Task failed", "task_id", task.ID, "name", task.Name, "reason", reason)
	return nil
}

// ProgressEvent is the broker-side progress record the worker publishes
// while a pipeline runs. Status is always "PROGRESS".
type ProgressEvent struct {
	Status   string  `json:"status"`
	JobID    string  `json:"job_id"`
	Progress float64 `json:"progress"`
}

// PublishProgress writes the job's progress event under a per-job key with
// a bounded TTL. Events are advisory; the job row stays authoritative.
func (q *Queue) PublishProgress(ctx context.Context, jobID string, progress float64) error {
	if q.client == nil {
		return fmt.Errorf("queue is not connected")
	}
	event := ProgressEvent{Status: "PROGRESS", JobID: jobID, Progress: progress}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal progress event: %w", err)
	}
	if err := q.client.Set(ctx, progressKeyPrefix+jobID, eventJSON, ProgressTTL).Err(); err != nil {
		return fmt.Errorf("failed to publish progress: %w", err)
	}
	return nil
}

// TaskProgress reads the latest progress event for a job. The second return
// is false when no event has been published or it already expired.
func (q *Queue) TaskProgress(ctx context.Context, jobID string) (ProgressEvent, bool, error) {
	if q.client == nil {
		return ProgressEvent{}, false, fmt.Errorf("queue is not connected")
	}
	raw, err := q.client.Get(ctx, progressKeyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return ProgressEvent{}, false, nil
	}
	if err != nil {
		return ProgressEvent{}, false, fmt.Errorf("failed to read progress: %w", err)
	}
	var event ProgressEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return ProgressEvent{}, false, fmt.Errorf("failed to unmarshal progress event: %w", err)
	}
	return event, true, nil
}

// QueueLength returns the number of waiting tasks.
func (q *Queue) QueueLength(ctx context.Context) (int64, error) {
	if q.client == nil {
		return 0, fmt.Errorf("queue is not connected")
	}
	length, err := q.client.LLen(ctx, WaitingQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

// Close closes the broker connection.
func (q *Queue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
