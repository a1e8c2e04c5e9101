package store

import (
	"errors"
	"time"
)

// Sentinel errors mapped onto API error kinds by the endpoints layer.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// AssetKind enumerates the supported media asset kinds.
const (
	AssetKindVideo          = "video"
	AssetKindAudio          = "audio"
	AssetKindSubtitle       = "subtitle"
	AssetKindTranscription  = "transcription"
	AssetKindImage          = "image"
	AssetKindShortsManifest = "shorts_manifest"
)

// ValidAssetKind reports whether kind names a known asset kind.
func ValidAssetKind(kind string) bool {
	switch kind {
	case AssetKindVideo, AssetKindAudio, AssetKindSubtitle,
		AssetKindTranscription, AssetKindImage, AssetKindShortsManifest:
		return true
	}
	return false
}

// MediaAsset is a registered media artifact.
type MediaAsset struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	URI             string    `json:"uri"`
	MimeType        string    `json:"mime_type,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a sink.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ValidJobStatus reports whether raw names a known status.
func ValidJobStatus(raw string) bool {
	switch JobStatus(raw) {
	case JobQueued, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// JobType enumerates the pipelines.
const (
	JobTypeCaptions           = "captions"
	JobTypeTranslateSubtitles = "translate_subtitles"
	JobTypeStyleSubtitles     = "style_subtitles"
	JobTypeShorts             = "shorts"
	JobTypeMergeAV            = "merge_av"
	JobTypeCutClip            = "cut_clip"
)

// Job is a persisted pipeline request.
type Job struct {
	ID            string         `json:"id"`
	JobType       string         `json:"job_type"`
	TaskID        string         `json:"task_id,omitempty"`
	Status        JobStatus      `json:"status"`
	Progress      float64        `json:"progress"`
	Error         string         `json:"error,omitempty"`
	Payload       map[string]any `json:"payload"`
	InputAssetID  string         `json:"input_asset_id,omitempty"`
	OutputAssetID string         `json:"output_asset_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SubtitleStylePreset is a read-mostly named style payload.
type SubtitleStylePreset struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Style       map[string]any `json:"style"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
