package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateJob persists a queued job and returns it with generated fields.
func (s *Store) CreateJob(ctx context.Context, job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = JobQueued
	}
	if job.Payload == nil {
		job.Payload = map[string]any{}
	}
	ts := now()
	job.CreatedAt = ts
	job.UpdatedAt = ts
	payload, err := marshalJSON(job.Payload)
	if err != nil {
		return Job{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, job_type, task_id, status, progress, error, payload,
			input_asset_id, output_asset_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.JobType, job.TaskID, string(job.Status), job.Progress, job.Error,
		payload, job.InputAssetID, job.OutputAssetID, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return Job{}, fmt.Errorf("failed to insert job: %w", err)
	}
	return job, nil
}

// GetJob fetches one job or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, status string) ([]Job, error) {
	query := jobSelect + ` ORDER BY created_at DESC, id DESC`
	args := []any{}
	if status != "" {
		query = jobSelect + ` WHERE status = ? ORDER BY created_at DESC, id DESC`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetTaskID records the broker task id assigned after enqueue.
func (s *Store) SetTaskID(ctx context.Context, id, taskID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET task_id = ?, updated_at = ? WHERE id = ?`, taskID, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set task id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// JobUpdate carries the fields of a partial job update. Nil fields are left
// untouched. Payload keys are shallow-merged over the stored payload.
type JobUpdate struct {
	Status        *JobStatus
	Progress      *float64
	Error         *string
	OutputAssetID *string
	Payload       map[string]any
}

// jobUpdateMaxAttempts bounds the optimistic-concurrency retry loop.
const jobUpdateMaxAttempts = 3

// UpdateJob applies a partial update. Terminal states are sinks: once a job
// is completed, failed, or cancelled its status and error no longer change,
// and its progress is pinned at 1.0. The write is guarded on the status the
// update was computed against, so a concurrent terminal transition is never
// clobbered; on a lost race the update is recomputed against the new row.
func (s *Store) UpdateJob(ctx context.Context, id string, update JobUpdate) (Job, error) {
	for attempt := 0; attempt < jobUpdateMaxAttempts; attempt++ {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		readStatus := job.Status
		if !readStatus.Terminal() {
			if update.Status != nil {
				job.Status = *update.Status
			}
			if update.Error != nil {
				job.Error = *update.Error
			}
			if update.Progress != nil {
				job.Progress = clampProgress(*update.Progress)
			}
		}
		if job.Status.Terminal() {
			job.Progress = 1.0
		}
		if update.OutputAssetID != nil {
			job.OutputAssetID = *update.OutputAssetID
		}
		for key, value := range update.Payload {
			job.Payload[key] = value
		}
		job.UpdatedAt = now()
		payload, err := marshalJSON(job.Payload)
		if err != nil {
			return Job{}, err
		}
		if s.beforeJobWrite != nil {
			s.beforeJobWrite()
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, progress = ?, error = ?, payload = ?,
				output_asset_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(job.Status), job.Progress, job.Error, payload,
			job.OutputAssetID, job.UpdatedAt, id, string(readStatus))
		if err != nil {
			return Job{}, fmt.Errorf("failed to update job: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return job, nil
		}
	}
	return Job{}, fmt.Errorf("job %s changed concurrently: %w", id, ErrConflict)
}

// CancelJob moves a non-terminal job to cancelled. Cancelling a terminal job
// is ErrConflict.
func (s *Store) CancelJob(ctx context.Context, id string) (Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Status.Terminal() {
		return Job{}, fmt.Errorf("job %s is already %s: %w", id, job.Status, ErrConflict)
	}
	status := JobCancelled
	return s.UpdateJob(ctx, id, JobUpdate{Status: &status})
}

// DeleteJob removes a terminal job. Deleting a running or queued job is
// ErrConflict.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("job %s is still %s: %w", id, job.Status, ErrConflict)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

const jobSelect = `SELECT id, job_type, task_id, status, progress, error, payload,
	input_asset_id, output_asset_id, created_at, updated_at FROM jobs`

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var status, payload string
	err := row.Scan(&job.ID, &job.JobType, &job.TaskID, &status, &job.Progress,
		&job.Error, &payload, &job.InputAssetID, &job.OutputAssetID,
		&job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to scan job: %w", err)
	}
	job.Status = JobStatus(status)
	if job.Payload, err = unmarshalJSON(payload); err != nil {
		return Job{}, err
	}
	return job, nil
}
