package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reframe/internal/store"
	"reframe/internal/subtitles"
	"reframe/internal/translate"
)

// runTranslate translates an SRT or VTT subtitle asset, preserving timings.
func (w *Worker) runTranslate(ctx context.Context, job store.Job, args map[string]any) (pipelineResult, error) {
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}

	path, owned, err := w.fetchAssetPath(ctx, argString(args, "subtitle_asset_id"))
	if err != nil {
		return pipelineResult{}, err
	}
	if owned {
		defer os.Remove(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return pipelineResult{}, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	srtText := string(raw)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".srt":
	case ".vtt":
		lines, err := subtitles.ParseVTT(srtText)
		if err != nil {
			return pipelineResult{}, fmt.Errorf("failed to parse VTT: %w", err)
		}
		srtText = subtitles.ToSRT(lines)
	default:
		return pipelineResult{}, fmt.Errorf("translation supports srt and vtt only, got %q", ext)
	}
	w.progress(ctx, job.ID, 0.3)

	src := argString(args, "source_language")
	tgt := argString(args, "target_language")
	var translator translate.Translator
	local, err := translate.NewLocalTranslator(src, tgt)
	if err != nil {
		w.warn(ctx, job.ID, "local translator unavailable, passing text through: "+err.Error())
		translator = translate.NoOpTranslator{}
	} else {
		translator = local
	}
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}

	var translated string
	if argBool(args, "bilingual") {
		translated, err = translate.TranslateSRTBilingual(srtText, translator, src, tgt)
	} else {
		translated, err = translate.TranslateSRT(srtText, translator, src, tgt)
	}
	if err != nil {
		return pipelineResult{}, err
	}
	w.progress(ctx, job.ID, 0.8)

	filename := fmt.Sprintf("%s.%s.srt", job.ID, tgt)
	asset, err := w.saveArtifactBytes(ctx, "tmp", filename,
		store.AssetKindSubtitle, subtitleMimeTypes["srt"], []byte(translated))
	if err != nil {
		return pipelineResult{}, err
	}

	return pipelineResult{
		outputAssetID: asset.ID,
		payload: map[string]any{
			"source_language": src,
			"target_language": tgt,
			"bilingual":       argBool(args, "bilingual"),
		},
	}, nil
}
