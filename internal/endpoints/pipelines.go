package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reframe/internal/queue"
	"reframe/internal/store"
)

// allowed caption output formats
var captionFormats = map[string]bool{"srt": true, "vtt": true, "ass": true}

// requireAsset loads an asset and checks its kind, aborting on failure.
func requireAsset(c *gin.Context, st *store.Store, id, wantKind string) (store.MediaAsset, bool) {
	asset, err := st.GetAsset(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "asset not found: "+id)
		return store.MediaAsset{}, false
	}
	if wantKind != "" && asset.Kind != wantKind {
		validationError(c, "asset has the wrong kind", gin.H{
			"asset_id": id, "kind": asset.Kind, "expected": wantKind,
		})
		return store.MediaAsset{}, false
	}
	return asset, true
}

// submitJob persists a queued job, enqueues its task, and records the task id.
func submitJob(c *gin.Context, st *store.Store, q *queue.Queue,
	jobType, taskName, inputAssetID string, payload map[string]any) {
	ctx := c.Request.Context()
	job, err := st.CreateJob(ctx, store.Job{
		JobType:      jobType,
		InputAssetID: inputAssetID,
		Payload:      payload,
	})
	if err != nil {
		serverError(c, "failed to create job")
		return
	}
	taskID, err := q.Enqueue(ctx, &queue.Task{Name: taskName, JobID: job.ID, Args: payload})
	if err != nil {
		serverError(c, "failed to enqueue job")
		return
	}
	if err := st.SetTaskID(ctx, job.ID, taskID); err != nil {
		serverError(c, "failed to record task id")
		return
	}
	job.TaskID = taskID
	c.JSON(http.StatusCreated, gin.H{"job": job})
}

type captionsRequest struct {
	AssetID         string   `json:"asset_id" binding:"required"`
	Backend         string   `json:"backend"`
	Model           string   `json:"model"`
	Language        string   `json:"language"`
	Diarize         bool     `json:"diarize"`
	DiarizeBackend  string   `json:"diarize_backend"`
	Formats         []string `json:"formats"`
	MaxCharsPerLine int      `json:"max_chars_per_line"`
	MaxWordsPerLine int      `json:"max_words_per_line"`
}

// HandleCreateCaptionsJob queues a caption generation pipeline for a video
// or audio asset.
func HandleCreateCaptionsJob(st *store.Store, q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req captionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}
		asset, ok := requireAsset(c, st, req.AssetID, "")
		if !ok {
			return
		}
		if asset.Kind != store.AssetKindVideo && asset.Kind != store.AssetKindAudio {
			validationError(c, "captions need a video or audio asset", gin.H{"kind": asset.Kind})
			return
		}
		if len(req.Formats) == 0 {
			req.Formats = []string{"srt"}
		}
		for _, format := range req.Formats {
			if !captionFormats[format] {
				validationError(c, "unsupported caption format", gin.H{"format": format})
				return
			}
		}
		submitJob(c, st, q, store.JobTypeCaptions, queue.TaskGenerateCaptions, asset.ID, map[string]any{
			"asset_id":           asset.ID,
			"backend":            req.Backend,
			"model":              req.Model,
			"language":           req.Language,
			"diarize":            req.Diarize,
			"diarize_backend":    req.DiarizeBackend,
			"formats":            req.Formats,
			"max_chars_per_line": req.MaxCharsPerLine,
			"max_words_per_line": req.MaxWordsPerLine,
		})
	}
}

type translateRequest struct {
	SubtitleAssetID string `json:"subtitle_asset_id" binding:"required"`
	SourceLanguage  string `json:"source_language" binding:"required"`
	TargetLanguage  string `json:"target_language" binding:"required"`
	Bilingual       bool   `json:"bilingual"`
}

// HandleCreateTranslateJob queues a subtitle translation pipeline.
func HandleCreateTranslateJob(st *store.Store, q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req translateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}
		asset, ok := requireAsset(c, st, req.SubtitleAssetID, store.AssetKindSubtitle)
		if !ok {
			return
		}
		submitJob(c, st, q, store.JobTypeTranslateSubtitles, queue.TaskTranslateSubtitles, asset.ID, map[string]any{
			"subtitle_asset_id": asset.ID,
			"source_language":   req.SourceLanguage,
			"target_language":   req.TargetLanguage,
			"bilingual":         req.Bilingual,
		})
	}
}

type styleRequest struct {
	VideoAssetID    string         `json:"video_asset_id" binding:"required"`
	SubtitleAssetID string         `json:"subtitle_asset_id" binding:"required"`
	Preset          string         `json:"preset"`
	Style           map[string]any `json:"style"`
	PreviewSeconds  float64        `json:"preview_seconds"`
}

// HandleCreateStyleJob queues a styled subtitle burn-in pipeline. A preset
// name and an inline style map are both accepted; inline keys win.
func HandleCreateStyleJob(st *store.Store, q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req styleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}
		video, ok := requireAsset(c, st, req.VideoAssetID, store.AssetKindVideo)
		if !ok {
			return
		}
		subtitle, ok := requireAsset(c, st, req.SubtitleAssetID, store.AssetKindSubtitle)
		if !ok {
			return
		}
		style := map[string]any{}
		if req.Preset != "" {
			preset, err := st.GetPresetByName(c.Request.Context(), req.Preset)
			if err != nil {
				storeError(c, err, "style preset not found: "+req.Preset)
				return
			}
			for key, value := range preset.Style {
				style[key] = value
			}
		}
		for key, value := range req.Style {
			style[key] = value
		}
		if req.PreviewSeconds < 0 {
			validationError(c, "preview_seconds must not be negative", nil)
			return
		}
		submitJob(c, st, q, store.JobTypeStyleSubtitles, queue.TaskRenderStyledSubtitles, video.ID, map[string]any{
			"video_asset_id":    video.ID,
			"subtitle_asset_id": subtitle.ID,
			"style":             style,
			"preview_seconds":   req.PreviewSeconds,
		})
	}
}

type shortsRequest struct {
	VideoAssetID      string  `json:"video_asset_id" binding:"required"`
	MaxClips          int     `json:"max_clips"`
	MinDuration       float64 `json:"min_duration"`
	MaxDuration       float64 `json:"max_duration"`
	MinGap            float64 `json:"min_gap"`
	Strategy          string  `json:"strategy"`
	TrimSilence       bool    `json:"trim_silence"`
	GenerateSubtitles bool    `json:"generate_subtitles"`
	Aspect            string  `json:"aspect"`
	ReframeMode       string  `json:"reframe_mode"`
}

// HandleCreateShortsJob queues a shorts extraction pipeline.
func HandleCreateShortsJob(st *store.Store, q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := shortsRequest{MaxClips: 3, MinDuration: 15, MaxDuration: 60, MinGap: 2}
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}
		video, ok := requireAsset(c, st, req.VideoAssetID, store.AssetKindVideo)
		if !ok {
			return
		}
		if req.MaxClips <= 0 {
			validationError(c, "max_clips must be positive", nil)
			return
		}
		if req.MinDuration <= 0 || req.MaxDuration < req.MinDuration {
			validationError(c, "clip duration bounds are inconsistent", gin.H{
				"min_duration": req.MinDuration, "max_duration": req.MaxDuration,
			})
			return
		}
		switch req.Strategy {
		case "", "equal_split", "sliding_window":
		default:
			validationError(c, "unknown segmentation strategy", gin.H{"strategy": req.Strategy})
			return
		}
		submitJob(c, st, q, store.JobTypeShorts, queue.TaskGenerateShorts, video.ID, map[string]any{
			"video_asset_id":     video.ID,
			"max_clips":          req.MaxClips,
			"min_duration":       req.MinDuration,
			"max_duration":       req.MaxDuration,
			"min_gap":            req.MinGap,
			"strategy":           req.Strategy,
			"trim_silence":       req.TrimSilence,
			"generate_subtitles": req.GenerateSubtitles,
			"aspect":             req.Aspect,
			"reframe_mode":       req.ReframeMode,
		})
	}
}

type mergeRequest struct {
	VideoAssetID  string  `json:"video_asset_id" binding:"required"`
	AudioAssetID  string  `json:"audio_asset_id" binding:"required"`
	OffsetSeconds float64 `json:"offset_seconds"`
	Ducking       any     `json:"ducking"`
	Normalize     bool    `json:"normalize"`
}

// duckingDefault is the original-audio volume applied when ducking is
// requested as a bare boolean.
const duckingDefault = 0.25

// normalizeDucking accepts ducking as a boolean (true means the default
// volume) or as an explicit volume in [0, 1].
func normalizeDucking(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, true
	case bool:
		if v {
			return duckingDefault, true
		}
		return 0, true
	case float64:
		if v < 0 || v > 1 {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// HandleCreateMergeJob queues an audio/video merge pipeline.
func HandleCreateMergeJob(st *store.Store, q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mergeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}
		video, ok := requireAsset(c, st, req.VideoAssetID, store.AssetKindVideo)
		if !ok {
			return
		}
		audio, ok := requireAsset(c, st, req.AudioAssetID, store.AssetKindAudio)
		if !ok {
			return
		}
		ducking, ok := normalizeDucking(req.Ducking)
		if !ok {
			validationError(c, "ducking must be a boolean or a number between 0 and 1",
				gin.H{"ducking": req.Ducking})
			return
		}
		submitJob(c, st, q, store.JobTypeMergeAV, queue.TaskMergeVideoAudio, video.ID, map[string]any{
			"video_asset_id": video.ID,
			"audio_asset_id": audio.ID,
			"offset_seconds": req.OffsetSeconds,
			"ducking":        ducking,
			"normalize":      req.Normalize,
		})
	}
}

type cutClipRequest struct {
	VideoAssetID string   `json:"video_asset_id" binding:"required"`
	Start        float64  `json:"start"`
	End          *float64 `json:"end" binding:"required"`
}

// HandleCreateCutClipJob queues a clip cut. A negative start is clamped to
// zero; the end must land after the (clamped) start.
func HandleCreateCutClipJob(st *store.Store, q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cutClipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			validationError(c, "invalid request body", gin.H{"error": err.Error()})
			return
		}
		video, ok := requireAsset(c, st, req.VideoAssetID, store.AssetKindVideo)
		if !ok {
			return
		}
		start := req.Start
		if start < 0 {
			start = 0
		}
		if *req.End <= start {
			validationError(c, "end must be after start", gin.H{"start": start, "end": *req.End})
			return
		}
		submitJob(c, st, q, store.JobTypeCutClip, queue.TaskCutClip, video.ID, map[string]any{
			"video_asset_id": video.ID,
			"start":          start,
			"end":            *req.End,
		})
	}
}
