package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reframe/internal/config"
	"reframe/internal/queue"
	"reframe/internal/storage"
	"reframe/internal/store"
)

type testEnv struct {
	router  *gin.Engine
	store   *store.Store
	queue   *queue.Queue
	backend storage.Backend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(context.Background(),
		"sqlite://"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	q := queue.NewQueueWithClient(client)

	backend, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	r := gin.New()
	SetupRoutes(r, st, q, backend)
	return &testEnv{router: r, store: st, queue: q, backend: backend}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, kind, filename, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("kind", kind))
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	fw, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/assets", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (e *testEnv) seedAsset(t *testing.T, kind, uri string) store.MediaAsset {
	t.Helper()
	asset, err := e.store.CreateAsset(context.Background(),
		store.MediaAsset{Kind: kind, URI: uri})
	require.NoError(t, err)
	return asset
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("x-request-id"))
}

func TestAssetUpload(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Upload registers the asset", func(t *testing.T) {
		rec := env.upload(t, store.AssetKindSubtitle, "captions.SRT", "text/x-subrip",
			"1\n00:00:00,000 --> 00:00:01,000\nhi\n")
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeBody(t, rec)
		asset := body["asset"].(map[string]any)
		assert.Equal(t, store.AssetKindSubtitle, asset["kind"])
		uri := asset["uri"].(string)
		assert.True(t, strings.HasPrefix(uri, "/media/tmp/"))
		assert.True(t, strings.HasSuffix(uri, ".srt"), "extension should be lowercased: %s", uri)
		assert.Greater(t, body["size_bytes"].(float64), 0.0)

		stored, err := env.store.GetAsset(context.Background(), asset["id"].(string))
		require.NoError(t, err)
		assert.Equal(t, uri, stored.URI)
	})

	t.Run("Unknown kind is rejected", func(t *testing.T) {
		rec := env.upload(t, "document", "a.pdf", "application/pdf", "x")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeValidation, decodeBody(t, rec)["code"])
	})

	t.Run("Derived kinds cannot be uploaded", func(t *testing.T) {
		rec := env.upload(t, store.AssetKindShortsManifest, "m.json", "application/json", "{}")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, CodeValidation, decodeBody(t, rec)["code"])
	})

	t.Run("Content type must match the kind", func(t *testing.T) {
		rec := env.upload(t, store.AssetKindVideo, "v.mp4", "text/plain", "not a video")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, CodeValidation, body["code"])

		rec = env.upload(t, store.AssetKindSubtitle, "s.srt", "text/plain", "1\n00:00:00,000 --> 00:00:01,000\nhi\n")
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("Missing file part is rejected", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("kind", store.AssetKindVideo))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/assets", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAssetUploadSizeCap(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "8")
	config.Reload()
	t.Cleanup(func() {
		os.Unsetenv("MAX_UPLOAD_BYTES")
		config.Reload()
	})
	env := newTestEnv(t)

	t.Run("Over the cap", func(t *testing.T) {
		rec := env.upload(t, store.AssetKindVideo, "a.mp4", "video/mp4", "123456789")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, CodePayloadTooLarge, decodeBody(t, rec)["code"])
	})

	t.Run("Exactly at the cap", func(t *testing.T) {
		rec := env.upload(t, store.AssetKindVideo, "a.mp4", "video/mp4", "12345678")
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestAssetEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("Get missing asset is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/assets/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, CodeNotFound, decodeBody(t, rec)["code"])
	})

	t.Run("List filters by kind", func(t *testing.T) {
		env.seedAsset(t, store.AssetKindVideo, "/media/tmp/a.mp4")
		env.seedAsset(t, store.AssetKindAudio, "/media/tmp/a.mp3")

		rec := env.do(t, http.MethodGet, "/api/assets?kind=audio", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assets := decodeBody(t, rec)["assets"].([]any)
		require.Len(t, assets, 1)
	})

	t.Run("List rejects unknown kind", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/assets?kind=document", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Delete referenced asset is 409", func(t *testing.T) {
		asset := env.seedAsset(t, store.AssetKindVideo, "/media/tmp/ref.mp4")
		_, err := env.store.CreateJob(ctx, store.Job{JobType: store.JobTypeCaptions, InputAssetID: asset.ID})
		require.NoError(t, err)

		rec := env.do(t, http.MethodDelete, "/api/assets/"+asset.ID, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeConflict, decodeBody(t, rec)["code"])
	})

	t.Run("Download URL without presign returns the stored URI", func(t *testing.T) {
		asset := env.seedAsset(t, store.AssetKindVideo, "/media/tmp/plain.mp4")
		rec := env.do(t, http.MethodGet, "/api/assets/"+asset.ID+"/download-url?presign=false", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/media/tmp/plain.mp4", decodeBody(t, rec)["url"])
	})
}

func TestCreateCaptionsJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	video := env.seedAsset(t, store.AssetKindVideo, "/media/tmp/v.mp4")

	t.Run("Queues a job and records the task id", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/captions/jobs", gin.H{
			"asset_id": video.ID,
			"formats":  []string{"srt", "vtt"},
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decodeBody(t, rec)
		job := body["job"].(map[string]any)
		assert.Equal(t, "queued", job["status"])
		assert.NotEmpty(t, job["task_id"])

		stored, err := env.store.GetJob(ctx, job["id"].(string))
		require.NoError(t, err)
		assert.Equal(t, job["task_id"], stored.TaskID)

		length, err := env.queue.QueueLength(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), length)

		task, err := env.queue.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskGenerateCaptions, task.Name)
		assert.Equal(t, stored.ID, task.JobID)
	})

	t.Run("Subtitle asset is rejected", func(t *testing.T) {
		subtitle := env.seedAsset(t, store.AssetKindSubtitle, "/media/tmp/s.srt")
		rec := env.do(t, http.MethodPost, "/api/captions/jobs", gin.H{"asset_id": subtitle.ID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Unknown format is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/captions/jobs", gin.H{
			"asset_id": video.ID,
			"formats":  []string{"ttml"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Missing asset is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/captions/jobs", gin.H{"asset_id": "nope"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCreateStyleJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	video := env.seedAsset(t, store.AssetKindVideo, "/media/tmp/v.mp4")
	subtitle := env.seedAsset(t, store.AssetKindSubtitle, "/media/tmp/s.srt")

	t.Run("Inline style wins over the preset", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/subtitles/style", gin.H{
			"video_asset_id":    video.ID,
			"subtitle_asset_id": subtitle.ID,
			"preset":            "clean",
			"style":             gin.H{"font_size": 99},
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		job := decodeBody(t, rec)["job"].(map[string]any)
		stored, err := env.store.GetJob(ctx, job["id"].(string))
		require.NoError(t, err)
		style := stored.Payload["style"].(map[string]any)
		assert.Equal(t, 99.0, style["font_size"])
		assert.Equal(t, "Arial", style["font_name"])
	})

	t.Run("Unknown preset is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/subtitles/style", gin.H{
			"video_asset_id":    video.ID,
			"subtitle_asset_id": subtitle.ID,
			"preset":            "nope",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCreateCutClipJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	video := env.seedAsset(t, store.AssetKindVideo, "/media/tmp/v.mp4")

	t.Run("Negative start clamps to zero", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/utilities/cut-clip", gin.H{
			"video_asset_id": video.ID,
			"start":          -3.0,
			"end":            5.0,
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		job := decodeBody(t, rec)["job"].(map[string]any)
		stored, err := env.store.GetJob(ctx, job["id"].(string))
		require.NoError(t, err)
		assert.Equal(t, 0.0, stored.Payload["start"])
		assert.Equal(t, 5.0, stored.Payload["end"])
	})

	t.Run("End before start is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/utilities/cut-clip", gin.H{
			"video_asset_id": video.ID,
			"start":          10.0,
			"end":            4.0,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("End is required", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/utilities/cut-clip", gin.H{
			"video_asset_id": video.ID,
			"start":          1.0,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateMergeJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	video := env.seedAsset(t, store.AssetKindVideo, "/media/tmp/v.mp4")
	audio := env.seedAsset(t, store.AssetKindAudio, "/media/tmp/a.mp3")

	merge := func(t *testing.T, ducking any) *httptest.ResponseRecorder {
		t.Helper()
		return env.do(t, http.MethodPost, "/api/utilities/merge-av", gin.H{
			"video_asset_id": video.ID,
			"audio_asset_id": audio.ID,
			"ducking":        ducking,
		})
	}

	t.Run("Boolean ducking maps to the default volume", func(t *testing.T) {
		rec := merge(t, true)
		require.Equal(t, http.StatusCreated, rec.Code)

		job := decodeBody(t, rec)["job"].(map[string]any)
		stored, err := env.store.GetJob(ctx, job["id"].(string))
		require.NoError(t, err)
		assert.Equal(t, 0.25, stored.Payload["ducking"])

		rec = merge(t, false)
		require.Equal(t, http.StatusCreated, rec.Code)
		job = decodeBody(t, rec)["job"].(map[string]any)
		stored, err = env.store.GetJob(ctx, job["id"].(string))
		require.NoError(t, err)
		assert.Equal(t, 0.0, stored.Payload["ducking"])
	})

	t.Run("Numeric ducking passes through", func(t *testing.T) {
		rec := merge(t, 0.4)
		require.Equal(t, http.StatusCreated, rec.Code)

		job := decodeBody(t, rec)["job"].(map[string]any)
		stored, err := env.store.GetJob(ctx, job["id"].(string))
		require.NoError(t, err)
		assert.Equal(t, 0.4, stored.Payload["ducking"])
	})

	t.Run("Out of range ducking is rejected", func(t *testing.T) {
		rec := merge(t, 1.5)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Non-numeric ducking is rejected", func(t *testing.T) {
		rec := merge(t, "loud")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Answer control tasks the way the worker would.
	go func() {
		for {
			task, err := env.queue.Dequeue(ctx)
			if err != nil {
				return
			}
			if task == nil {
				continue
			}
			switch task.Name {
			case queue.TaskPing:
				env.queue.Reply(ctx, task, map[string]any{"pong": true, "hostname": "worker-1"})
			case queue.TaskSystemInfo:
				env.queue.Reply(ctx, task, map[string]any{"hostname": "worker-1", "num_cpu": 4})
			}
		}
	}()

	rec := env.do(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.Equal(t, config.APIVersion, body["api_version"])
	assert.Equal(t, "local", body["storage_backend"])
	assert.Equal(t, config.BrokerURL, body["broker_url"])
	assert.Equal(t, config.ResolveResultBackend(), body["result_backend"])

	worker := body["worker"].(map[string]any)
	assert.Equal(t, true, worker["ping_ok"])
	workers := worker["workers"].([]any)
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-1", workers[0])
	info := worker["system_info"].(map[string]any)
	assert.Equal(t, 4.0, info["num_cpu"])
}

func TestJobLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("Cancel then cancel again conflicts", func(t *testing.T) {
		job, err := env.store.CreateJob(ctx, store.Job{JobType: store.JobTypeCaptions})
		require.NoError(t, err)

		rec := env.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cancelled", decodeBody(t, rec)["job"].(map[string]any)["status"])

		rec = env.do(t, http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, CodeConflict, decodeBody(t, rec)["code"])
	})

	t.Run("Delete a running job conflicts", func(t *testing.T) {
		job, err := env.store.CreateJob(ctx, store.Job{JobType: store.JobTypeCaptions})
		require.NoError(t, err)
		running := store.JobRunning
		_, err = env.store.UpdateJob(ctx, job.ID, store.JobUpdate{Status: &running})
		require.NoError(t, err)

		rec := env.do(t, http.MethodDelete, "/api/jobs/"+job.ID, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Delete a cancelled job with its assets", func(t *testing.T) {
		in := env.seedAsset(t, store.AssetKindVideo, "/media/tmp/in.mp4")
		out := env.seedAsset(t, store.AssetKindSubtitle, "/media/tmp/out.srt")
		job, err := env.store.CreateJob(ctx, store.Job{
			JobType: store.JobTypeCaptions, InputAssetID: in.ID,
		})
		require.NoError(t, err)
		_, err = env.store.CancelJob(ctx, job.ID)
		require.NoError(t, err)
		_, err = env.store.UpdateJob(ctx, job.ID, store.JobUpdate{OutputAssetID: &out.ID})
		require.NoError(t, err)

		rec := env.do(t, http.MethodDelete, "/api/jobs/"+job.ID+"?delete_assets=true", nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		_, err = env.store.GetJob(ctx, job.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = env.store.GetAsset(ctx, out.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		// The input existed before the job; the cascade must leave it alone.
		_, err = env.store.GetAsset(ctx, in.ID)
		assert.NoError(t, err)
	})

	t.Run("List rejects unknown status", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/jobs?status=paused", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListStylePresets(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/presets/styles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	presets := decodeBody(t, rec)["presets"].([]any)
	require.Len(t, presets, 3)
	assert.Equal(t, "bold-yellow", presets[0].(map[string]any)["name"])
}

func TestRateLimiting(t *testing.T) {
	t.Setenv("RATE_LIMIT_REQUESTS", "2")
	config.Reload()
	t.Cleanup(func() {
		os.Unsetenv("RATE_LIMIT_REQUESTS")
		config.Reload()
	})
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/health", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decodeBody(t, rec)["code"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
