package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"reframe/internal/config"
	"reframe/internal/diarize"
	"reframe/internal/ffmpeg"
	"reframe/internal/store"
	"reframe/internal/subtitles"
	"reframe/internal/transcribe"
)

var subtitleMimeTypes = map[string]string{
	"srt": "application/x-subrip",
	"vtt": "text/vtt",
	"ass": "text/x-ssa",
}

// runCaptions transcribes a media asset, groups the words into lines,
// optionally attributes speakers, and serializes the requested formats.
func (w *Worker) runCaptions(ctx context.Context, job store.Job, args map[string]any) (pipelineResult, error) {
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}

	mediaPath, owned, err := w.fetchAssetPath(ctx, argString(args, "asset_id"))
	if err != nil {
		return pipelineResult{}, err
	}
	if owned {
		defer os.Remove(mediaPath)
	}
	w.progress(ctx, job.ID, 0.1)

	backend, err := transcribe.ParseBackend(argString(args, "backend"))
	if err != nil {
		w.warn(ctx, job.ID, fmt.Sprintf("unknown transcription backend %q, using noop", argString(args, "backend")))
		backend = transcribe.BackendNoop
	}
	if config.OfflineMode() && backend == transcribe.BackendOpenAIWhisper {
		w.warn(ctx, job.ID, "offline mode forbids openai_whisper, using noop")
		backend = transcribe.BackendNoop
	}

	cfg := transcribe.Config{
		Backend:  backend,
		Model:    transcribe.NormalizeModelName(argString(args, "model")),
		Language: argString(args, "language"),
	}
	result, err := transcribe.New(backend).Transcribe(mediaPath, cfg)
	if err != nil {
		w.warn(ctx, job.ID, "transcription failed, using noop fallback: "+err.Error())
		result = transcribe.Noop(mediaPath, cfg)
	}
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}
	w.progress(ctx, job.ID, 0.5)

	grouping := subtitles.DefaultGroupingConfig()
	if v := argInt(args, "max_chars_per_line", 0); v > 0 {
		grouping.MaxCharsPerLine = v
	}
	if v := argInt(args, "max_words_per_line", 0); v > 0 {
		grouping.MaxWordsPerLine = v
	}
	lines := subtitles.GroupWords(result.Words, grouping)

	if argBool(args, "diarize") {
		lines, err = w.diarizeLines(ctx, job.ID, mediaPath, argString(args, "diarize_backend"), lines)
		if err != nil {
			return pipelineResult{}, err
		}
	}
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}
	w.progress(ctx, job.ID, 0.8)

	formats := argStrings(args, "formats")
	if len(formats) == 0 {
		formats = []string{"srt"}
	}
	subtitleAssets := map[string]any{}
	var outputAssetID string
	for _, format := range formats {
		var content string
		switch format {
		case "srt":
			content = subtitles.ToSRT(lines)
		case "vtt":
			content = subtitles.ToVTT(lines)
		case "ass":
			content = subtitles.ToASS(lines)
		default:
			w.warn(ctx, job.ID, "skipping unsupported caption format: "+format)
			continue
		}
		filename := job.ID + "." + format
		asset, err := w.saveArtifactBytes(ctx, "tmp", filename,
			store.AssetKindSubtitle, subtitleMimeTypes[format], []byte(content))
		if err != nil {
			return pipelineResult{}, err
		}
		subtitleAssets[format] = asset.ID
		if outputAssetID == "" {
			outputAssetID = asset.ID
		}
	}
	if outputAssetID == "" {
		return pipelineResult{}, fmt.Errorf("no caption format produced an artifact")
	}

	return pipelineResult{
		outputAssetID: outputAssetID,
		payload: map[string]any{
			"subtitle_assets": subtitleAssets,
			"language":        result.Language,
			"model":           result.Model,
			"word_count":      len(result.Words),
			"line_count":      len(lines),
		},
	}, nil
}

// diarizeLines extracts a mono 16 kHz WAV and attributes speakers. Soft
// failures degrade to unlabeled lines with a warning.
func (w *Worker) diarizeLines(ctx context.Context, jobID, mediaPath, rawBackend string, lines []subtitles.Line) ([]subtitles.Line, error) {
	backend, err := diarize.ParseBackend(rawBackend)
	if err != nil {
		w.warn(ctx, jobID, fmt.Sprintf("unknown diarization backend %q, skipping", rawBackend))
		return lines, nil
	}
	if config.OfflineMode() && backend == diarize.BackendPyannote {
		w.warn(ctx, jobID, "offline mode forbids pyannote, skipping diarization")
		return lines, nil
	}
	if backend == diarize.BackendNoop {
		return lines, nil
	}

	wavPath := filepath.Join(os.TempDir(), "reframe-diarize-"+jobID+".wav")
	defer os.Remove(wavPath)
	err = w.runWithRetry(ctx, jobID, "extract_audio", func() error {
		_, _, err := w.runner.Run(ctx, ffmpeg.ExtractAudioWAVArgs(mediaPath, wavPath))
		return err
	})
	if err != nil {
		w.warn(ctx, jobID, "audio extraction for diarization failed: "+err.Error())
		return lines, nil
	}

	segments, err := diarize.New(backend).Diarize(wavPath, diarize.Config{
		Backend:          backend,
		HuggingFaceToken: os.Getenv("HF_TOKEN"),
	})
	if err != nil {
		w.warn(ctx, jobID, "diarization failed: "+err.Error())
		return lines, nil
	}
	return diarize.AssignSpeakers(lines, segments), nil
}
