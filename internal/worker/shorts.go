package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"reframe/internal/ffmpeg"
	"reframe/internal/segment"
	"reframe/internal/store"
	"reframe/internal/subtitles"
	"reframe/internal/transcribe"
)

// silenceDropThreshold drops a candidate once silence covers more than half
// of it.
const silenceDropThreshold = 0.5

// fallbackThumbnailPNG is a 1x1 PNG used when frame extraction fails.
var fallbackThumbnailPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

// clipArtifact is one produced short in the manifest and the job payload.
type clipArtifact struct {
	Index            int     `json:"index"`
	AssetID          string  `json:"asset_id"`
	ThumbnailAssetID string  `json:"thumbnail_asset_id,omitempty"`
	SubtitleAssetID  string  `json:"subtitle_asset_id,omitempty"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Score            float64 `json:"score"`
	Reason           string  `json:"reason,omitempty"`
}

// runShorts cuts the highest scoring non-overlapping spans of a video into
// short clips with thumbnails and a manifest.
func (w *Worker) runShorts(ctx context.Context, job store.Job, args map[string]any) (pipelineResult, error) {
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}

	videoPath, owned, err := w.fetchAssetPath(ctx, argString(args, "video_asset_id"))
	if err != nil {
		return pipelineResult{}, err
	}
	if owned {
		defer os.Remove(videoPath)
	}

	var info ffmpeg.ProbeInfo
	err = w.runWithRetry(ctx, job.ID, "probe", func() error {
		var probeErr error
		info, probeErr = ffmpeg.ProbeMedia(ctx, w.runner, videoPath)
		return probeErr
	})
	if err != nil {
		return pipelineResult{}, err
	}
	if info.Duration <= 0 {
		return pipelineResult{}, fmt.Errorf("video has no measurable duration")
	}
	w.progress(ctx, job.ID, 0.1)

	maxClips := argInt(args, "max_clips", 3)
	minDuration := argFloat(args, "min_duration", 15)
	maxDuration := argFloat(args, "max_duration", 60)
	minGap := argFloat(args, "min_gap", 2)

	var candidates []segment.Candidate
	if argString(args, "strategy") == "sliding_window" {
		candidates = segment.SlidingWindow(info.Duration, maxDuration, maxDuration/2)
	} else {
		candidates = segment.EqualSplits(info.Duration, maxDuration)
	}
	// Earlier spans score higher so selection prefers the opening material.
	for i := range candidates {
		candidates[i].Score = 1.0 - 0.01*float64(i)
	}

	if argBool(args, "trim_silence") {
		candidates, err = w.applySilenceScores(ctx, job.ID, videoPath, candidates)
		if err != nil {
			return pipelineResult{}, err
		}
	}
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}

	selected := segment.SelectTop(candidates, maxClips, minDuration, maxDuration, minGap)
	if len(selected) == 0 {
		// Bound-filtered selection can come up empty on short inputs; fall
		// back to the first candidates as cut.
		w.warn(ctx, job.ID, "no candidate satisfied the duration bounds, using leading splits")
		for i := 0; i < len(candidates) && i < maxClips; i++ {
			selected = append(selected, candidates[i])
		}
	}
	if len(selected) == 0 {
		return pipelineResult{}, fmt.Errorf("no clip candidates for a %0.1fs video", info.Duration)
	}
	w.progress(ctx, job.ID, 0.3)

	clips := []clipArtifact{}
	for i, candidate := range selected {
		if err := w.checkpoint(ctx, job.ID); err != nil {
			return pipelineResult{}, err
		}
		clip, err := w.produceClip(ctx, job.ID, videoPath, i, candidate, args)
		if err != nil {
			return pipelineResult{}, err
		}
		clips = append(clips, clip)
		w.progress(ctx, job.ID, 0.3+0.6*float64(i+1)/float64(len(selected)))
	}

	manifest := map[string]any{
		"job_id":          job.ID,
		"source_asset_id": argString(args, "video_asset_id"),
		"source_duration": info.Duration,
		"clips":           clips,
		"requested_clips": maxClips,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return pipelineResult{}, fmt.Errorf("failed to encode manifest: %w", err)
	}
	manifestAsset, err := w.saveArtifactBytes(ctx, "tmp", job.ID+".manifest.json",
		store.AssetKindShortsManifest, "application/json", manifestJSON)
	if err != nil {
		return pipelineResult{}, err
	}

	clipPayload := make([]any, 0, len(clips))
	for _, clip := range clips {
		entry := map[string]any{
			"asset_id": clip.AssetID,
			"start":    clip.Start,
			"end":      clip.End,
			"score":    clip.Score,
		}
		if clip.ThumbnailAssetID != "" {
			entry["thumbnail_asset_id"] = clip.ThumbnailAssetID
		}
		if clip.SubtitleAssetID != "" {
			entry["subtitle_asset_id"] = clip.SubtitleAssetID
		}
		clipPayload = append(clipPayload, entry)
	}
	return pipelineResult{
		outputAssetID: manifestAsset.ID,
		payload: map[string]any{
			"clip_assets": clipPayload,
			"clip_count":  len(clips),
		},
	}, nil
}

// applySilenceScores discounts candidates by their silence coverage and
// drops mostly silent ones.
func (w *Worker) applySilenceScores(ctx context.Context, jobID, videoPath string, candidates []segment.Candidate) ([]segment.Candidate, error) {
	intervals, err := ffmpeg.DetectSilence(ctx, w.runner, videoPath)
	if err != nil {
		w.warn(ctx, jobID, "silence detection failed, keeping all candidates: "+err.Error())
		return candidates, nil
	}
	kept := candidates[:0]
	for _, c := range candidates {
		coverage := ffmpeg.Coverage(intervals, c.Start, c.End)
		if coverage > silenceDropThreshold {
			continue
		}
		c.Score *= 1 - coverage
		kept = append(kept, c)
	}
	return kept, nil
}

// produceClip cuts one span, optionally reframes it, grabs a thumbnail, and
// writes an optional subtitle placeholder.
func (w *Worker) produceClip(ctx context.Context, jobID, videoPath string, index int, candidate segment.Candidate, args map[string]any) (clipArtifact, error) {
	clipName := fmt.Sprintf("%s-clip-%02d", jobID, index+1)
	cutPath := filepath.Join(os.TempDir(), clipName+".mp4")
	defer os.Remove(cutPath)

	err := w.runWithRetry(ctx, jobID, "cut_clip", func() error {
		return ffmpeg.CutClip(ctx, w.runner, videoPath, candidate.Start, candidate.End, cutPath)
	})
	if err != nil {
		return clipArtifact{}, err
	}

	finalPath := cutPath
	if aspect := argString(args, "aspect"); aspect != "" {
		reframedPath := filepath.Join(os.TempDir(), clipName+".reframed.mp4")
		defer os.Remove(reframedPath)
		err = w.runWithRetry(ctx, jobID, "reframe", func() error {
			return ffmpeg.Reframe(ctx, w.runner, cutPath, reframedPath, aspect, argString(args, "reframe_mode"))
		})
		if err != nil {
			return clipArtifact{}, err
		}
		finalPath = reframedPath
	}

	clipAsset, err := w.saveArtifactFile(ctx, "tmp", clipName+".mp4",
		store.AssetKindVideo, "video/mp4", finalPath)
	if err != nil {
		return clipArtifact{}, err
	}
	clip := clipArtifact{
		Index:   index + 1,
		AssetID: clipAsset.ID,
		Start:   candidate.Start,
		End:     candidate.End,
		Score:   candidate.Score,
		Reason:  candidate.Reason,
	}

	thumbPath := filepath.Join(os.TempDir(), clipName+".png")
	defer os.Remove(thumbPath)
	if _, _, err := w.runner.Run(ctx, ffmpeg.ThumbnailArgs(finalPath, thumbPath)); err == nil {
		if asset, err := w.saveArtifactFile(ctx, "tmp", clipName+".png",
			store.AssetKindImage, "image/png", thumbPath); err == nil {
			clip.ThumbnailAssetID = asset.ID
		}
	} else {
		w.warn(ctx, jobID, fmt.Sprintf("thumbnail extraction failed for clip %d, using placeholder", index+1))
		if asset, err := w.saveArtifactBytes(ctx, "tmp", clipName+".png",
			store.AssetKindImage, "image/png", fallbackThumbnailPNG); err == nil {
			clip.ThumbnailAssetID = asset.ID
		}
	}

	if argBool(args, "generate_subtitles") {
		duration := candidate.Duration()
		placeholder := subtitles.ToVTT([]subtitles.Line{{
			Start: 0,
			End:   duration,
			Words: []transcribe.Word{{Text: fmt.Sprintf("Clip %d", index+1), Start: 0, End: duration}},
		}})
		if asset, err := w.saveArtifactBytes(ctx, "tmp", clipName+".vtt",
			store.AssetKindSubtitle, subtitleMimeTypes["vtt"], []byte(placeholder)); err == nil {
			clip.SubtitleAssetID = asset.ID
		}
	}

	return clip, nil
}
