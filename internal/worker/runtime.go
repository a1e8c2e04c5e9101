package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"reframe/internal/config"
	"reframe/internal/ffmpeg"
	"reframe/internal/storage"
	"reframe/internal/store"
)

// checkpoint reloads the job and aborts the pipeline when it was cancelled.
func (w *Worker) checkpoint(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == store.JobCancelled {
		return errCancelled
	}
	return nil
}

// progress records pipeline progress on the job row and publishes a
// broker-side progress event. Both writes are best effort.
func (w *Worker) progress(ctx context.Context, jobID string, value float64) {
	w.store.UpdateJob(ctx, jobID, store.JobUpdate{Progress: &value})
	if err := w.queue.PublishProgress(ctx, jobID, value); err != nil {
		slog.Debug("Progress event not published", "job_id", jobID, "error", err)
	}
}

// warn appends a soft error to payload.warnings.
func (w *Worker) warn(ctx context.Context, jobID, message string) {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	warnings, _ := job.Payload["warnings"].([]any)
	warnings = append(warnings, message)
	w.store.UpdateJob(ctx, jobID, store.JobUpdate{Payload: map[string]any{"warnings": warnings}})
}

// fetchAssetPath makes the asset's bytes available on the local filesystem.
// Remote URIs are downloaded to a temp file; the second return reports
// whether the caller owns (and should remove) the path.
func (w *Worker) fetchAssetPath(ctx context.Context, assetID string) (string, bool, error) {
	asset, err := w.store.GetAsset(ctx, assetID)
	if err != nil {
		return "", false, fmt.Errorf("failed to load asset %s: %w", assetID, err)
	}
	if !storage.IsRemoteURI(asset.URI) {
		path, err := w.storage.ResolveLocalPath(asset.URI)
		if err != nil {
			return "", false, err
		}
		return path, false, nil
	}

	if config.OfflineMode() {
		return "", false, fmt.Errorf("offline mode forbids fetching remote asset %s", assetID)
	}
	url, err := w.storage.DownloadURL(ctx, asset.URI)
	if err != nil {
		return "", false, err
	}
	path, err := w.downloadToTemp(ctx, url, filepath.Ext(asset.URI))
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch asset %s: %w", assetID, err)
	}
	return path, true, nil
}

func (w *Worker) downloadToTemp(ctx context.Context, url, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "reframe-fetch-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// saveArtifactBytes stores data and registers it as an asset.
func (w *Worker) saveArtifactBytes(ctx context.Context, relDir, filename, kind, mimeType string, data []byte) (store.MediaAsset, error) {
	uri, err := w.storage.WriteBytes(ctx, relDir, filename, data, mimeType)
	if err != nil {
		return store.MediaAsset{}, fmt.Errorf("failed to store %s: %w", filename, err)
	}
	return w.store.CreateAsset(ctx, store.MediaAsset{Kind: kind, URI: uri, MimeType: mimeType})
}

// saveArtifactFile stores a produced file and registers it as an asset.
func (w *Worker) saveArtifactFile(ctx context.Context, relDir, filename, kind, mimeType, sourcePath string) (store.MediaAsset, error) {
	uri, err := w.storage.WriteFile(ctx, relDir, filename, sourcePath, mimeType)
	if err != nil {
		return store.MediaAsset{}, fmt.Errorf("failed to store %s: %w", filename, err)
	}
	return w.store.CreateAsset(ctx, store.MediaAsset{Kind: kind, URI: uri, MimeType: mimeType})
}

// retryPolicy builds the ffmpeg retry policy from config.
func retryPolicy() ffmpeg.RetryPolicy {
	return ffmpeg.RetryPolicy{
		MaxAttempts:      config.JobRetryMaxAttempts,
		BaseDelaySeconds: config.JobRetryBaseDelaySeconds,
	}
}

// runWithRetry wraps an ffmpeg step with retries, recording attempts on the
// job payload so clients can see retry state.
func (w *Worker) runWithRetry(ctx context.Context, jobID, step string, fn func() error) error {
	policy := retryPolicy()
	return ffmpeg.Retry(ctx, policy, step, func(attempt int) {
		w.store.UpdateJob(ctx, jobID, store.JobUpdate{Payload: map[string]any{
			"retry_step":         step,
			"retry_attempt":      attempt,
			"retry_max_attempts": policy.MaxAttempts,
		}})
	}, fn)
}

// Argument helpers. Task args travel as JSON, so numbers arrive as float64.

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argBool(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func argFloat(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func argStrings(args map[string]any, key string) []string {
	out := []string{}
	switch v := args[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	}
	return out
}

func argMap(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}
