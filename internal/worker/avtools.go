package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"reframe/internal/ffmpeg"
	"reframe/internal/store"
)

// runMerge mixes an external audio track into a video, probing first so the
// filter graph matches the container's audio layout.
func (w *Worker) runMerge(ctx context.Context, job store.Job, args map[string]any) (pipelineResult, error) {
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}

	videoPath, videoOwned, err := w.fetchAssetPath(ctx, argString(args, "video_asset_id"))
	if err != nil {
		return pipelineResult{}, err
	}
	if videoOwned {
		defer os.Remove(videoPath)
	}
	audioPath, audioOwned, err := w.fetchAssetPath(ctx, argString(args, "audio_asset_id"))
	if err != nil {
		return pipelineResult{}, err
	}
	if audioOwned {
		defer os.Remove(audioPath)
	}
	w.progress(ctx, job.ID, 0.2)

	var info ffmpeg.ProbeInfo
	err = w.runWithRetry(ctx, job.ID, "probe", func() error {
		var probeErr error
		info, probeErr = ffmpeg.ProbeMedia(ctx, w.runner, videoPath)
		return probeErr
	})
	if err != nil {
		return pipelineResult{}, err
	}
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}

	outputPath := filepath.Join(os.TempDir(), "reframe-merge-"+job.ID+".mp4")
	defer os.Remove(outputPath)
	opts := ffmpeg.MergeOptions{
		Offset:        argFloat(args, "offset_seconds", 0),
		Ducking:       argFloat(args, "ducking", 0),
		Normalize:     argBool(args, "normalize"),
		VideoHasAudio: info.HasAudio(),
	}
	err = w.runWithRetry(ctx, job.ID, "merge_video_audio", func() error {
		return ffmpeg.MergeVideoAudio(ctx, w.runner, videoPath, audioPath, outputPath, opts)
	})
	if err != nil {
		return pipelineResult{}, err
	}
	w.progress(ctx, job.ID, 0.9)

	asset, err := w.saveArtifactFile(ctx, "tmp", job.ID+".mp4",
		store.AssetKindVideo, "video/mp4", outputPath)
	if err != nil {
		return pipelineResult{}, err
	}
	return pipelineResult{
		outputAssetID: asset.ID,
		payload: map[string]any{
			"video_had_audio": info.HasAudio(),
		},
	}, nil
}

// runCutClip stream-copies a span out of a video. The end is clamped to the
// probed duration when the probe yields one.
func (w *Worker) runCutClip(ctx context.Context, job store.Job, args map[string]any) (pipelineResult, error) {
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

	start := argFloat(args, "start", 0)
	if start < 0 {
		start = 0
	}
	end := argFloat(args, "end", 0)

	var info ffmpeg.ProbeInfo
	probeErr := w.runWithRetry(ctx, job.ID, "probe", func() error {
		var err error
		info, err = ffmpeg.ProbeMedia(ctx, w.runner, videoPath)
		return err
	})
	if probeErr == nil && info.Duration > 0 && end > info.Duration {
		end = info.Duration
	}
	if end <= start {
		return pipelineResult{}, fmt.Errorf("cut span [%0.3f, %0.3f) is empty", start, end)
	}
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}
	w.progress(ctx, job.ID, 0.3)

	outputPath := filepath.Join(os.TempDir(), "reframe-cut-"+job.ID+".mp4")
	defer os.Remove(outputPath)
	err = w.runWithRetry(ctx, job.ID, "cut_clip", func() error {
		return ffmpeg.CutClip(ctx, w.runner, videoPath, start, end, outputPath)
	})
	if err != nil {
		return pipelineResult{}, err
	}
	w.progress(ctx, job.ID, 0.9)

	asset, err := w.saveArtifactFile(ctx, "tmp", job.ID+".mp4",
		store.AssetKindVideo, "video/mp4", outputPath)
	if err != nil {
		return pipelineResult{}, err
	}
	return pipelineResult{
		outputAssetID: asset.ID,
		payload: map[string]any{
			"start": start,
			"end":   end,
		},
	}, nil
}
