package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Call sends a control task to the worker and waits up to timeout for the
// reply. A nil result with no error means no worker answered in time.
func (q *Queue) Call(ctx context.Context, name string, args map[string]any, timeout time.Duration) (map[string]any, error) {
	if q.client == nil {
		return nil, fmt.Errorf("queue is not connected")
	}

	task := &Task{
		ID:        uuid.NewString(),
		Name:      name,
		Args:      args,
		ReplyKey:  "reframe:reply:" + uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal control task: %w", err)
	}
	if err := q.client.LPush(ctx, ControlQueue, taskJSON).Err(); err != nil {
		return nil, fmt.Errorf("failed to send control task: %w", err)
	}

	result, err := q.client.BRPop(ctx, timeout, task.ReplyKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read control reply: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid BRPOP result: %v", result)
	}

	reply := map[string]any{}
	if err := json.Unmarshal([]byte(result[1]), &reply); err != nil {
		return nil, fmt.Errorf("failed to unmarshal control reply: %w", err)
	}
	return reply, nil
}

// Reply answers a control task. Replies expire unread after ControlReplyTTL.
func (q *Queue) Reply(ctx context.Context, task *Task, payload map[string]any) error {
	if q.client == nil {
		return fmt.Errorf("queue is not connected")
	}
	if task.ReplyKey == "" {
		return fmt.Errorf("control task %s has no reply key", task.ID)
	}

	replyJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal control reply: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.LPush(ctx, task.ReplyKey, replyJSON)
	pipe.Expire(ctx, task.ReplyKey, ControlReplyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to send control reply: %w", err)
	}
	return nil
}
