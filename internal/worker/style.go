package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"reframe/internal/ffmpeg"
	"reframe/internal/store"
	"reframe/internal/subtitles"
)

// runStyle burns styled subtitles into a video. ASS input is burned as-is;
// SRT and VTT are parsed and re-emitted as karaoke ASS. The style map
// becomes an ass force_style override.
func (w *Worker) runStyle(ctx context.Context, job store.Job, args map[string]any) (pipelineResult, error) {
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
	subsPath, subsOwned, err := w.fetchAssetPath(ctx, argString(args, "subtitle_asset_id"))
	if err != nil {
		return pipelineResult{}, err
	}
	if subsOwned {
		defer os.Remove(subsPath)
	}
	w.progress(ctx, job.ID, 0.2)

	assPath := subsPath
	payload := map[string]any{}
	if ext := strings.ToLower(filepath.Ext(subsPath)); ext != ".ass" {
		lines, err := loadSubtitleLines(subsPath)
		if err != nil {
			return pipelineResult{}, err
		}
		assText := subtitles.ToASSKaraoke(lines)
		assPath = filepath.Join(os.TempDir(), "reframe-style-"+job.ID+".ass")
		if err := os.WriteFile(assPath, []byte(assText), 0o644); err != nil {
			return pipelineResult{}, fmt.Errorf("failed to write ASS file: %w", err)
		}
		defer os.Remove(assPath)
		payload["line_count"] = len(lines)
	}

	if err := w.checkpoint(ctx, job.ID); err != nil {
		return pipelineResult{}, err
	}
	w.progress(ctx, job.ID, 0.4)

	subsArg := assPath
	if forceStyle := buildForceStyle(argMap(args, "style")); forceStyle != "" {
		subsArg = fmt.Sprintf("%s:force_style='%s'", assPath, forceStyle)
	}

	outputPath := filepath.Join(os.TempDir(), "reframe-styled-"+job.ID+".mp4")
	defer os.Remove(outputPath)
	argv := ffmpeg.BurnSubtitlesArgs(videoPath, subsArg, outputPath, nil)
	// Re-encode flags and the optional preview cut go before the output path.
	target := argv[len(argv)-1]
	argv = argv[:len(argv)-1]
	if preview := argFloat(args, "preview_seconds", 0); preview > 0 {
		argv = append(argv, "-t", strconv.FormatFloat(preview, 'f', -1, 64))
	}
	argv = append(argv, "-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "copy", target)

	err = w.runWithRetry(ctx, job.ID, "burn_subtitles", func() error {
		_, _, err := w.runner.Run(ctx, argv)
		return err
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
	return pipelineResult{outputAssetID: asset.ID, payload: payload}, nil
}

// loadSubtitleLines parses an SRT or VTT file into lines.
func loadSubtitleLines(path string) ([]subtitles.Line, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".srt":
		return subtitles.ParseSRT(string(raw))
	case ".vtt":
		return subtitles.ParseVTT(string(raw))
	default:
		return nil, fmt.Errorf("styling supports srt, vtt and ass only, got %q", ext)
	}
}

// alignment maps named positions onto ASS numpad alignment values.
var assAlignment = map[string]int{"bottom": 2, "middle": 5, "top": 8}

// buildForceStyle converts the style map into an ass force_style string,
// fields in libass template order with BorderStyle pinned to outline-and-
// shadow rendering. Field separators are escaped so the -vf chain does not
// split on them.
func buildForceStyle(style map[string]any) string {
	if len(style) == 0 {
		return ""
	}
	fields := []string{}
	add := func(key, value string) {
		fields = append(fields, key+"="+value)
	}
	if v, ok := style["font_name"].(string); ok && v != "" {
		add("Fontname", v)
	}
	if v := styleNumber(style, "font_size"); v != "" {
		add("Fontsize", v)
	}
	primary, _ := style["primary_color"].(string)
	if primary != "" {
		add("PrimaryColour", hexToASSColor(primary))
	}
	// The karaoke highlight falls back to the primary colour when no
	// secondary is given.
	secondary, _ := style["secondary_color"].(string)
	if secondary == "" {
		secondary = primary
	}
	if secondary != "" {
		add("SecondaryColour", hexToASSColor(secondary))
	}
	if v, ok := style["outline_color"].(string); ok && v != "" {
		add("OutlineColour", hexToASSColor(v))
	}
	add("BorderStyle", "1")
	if v := styleNumber(style, "outline"); v != "" {
		add("Outline", v)
	}
	if v := styleNumber(style, "shadow"); v != "" {
		add("Shadow", v)
	}
	if v, ok := style["bold"].(bool); ok {
		if v {
			add("Bold", "-1")
		} else {
			add("Bold", "0")
		}
	}
	if v, ok := style["position"].(string); ok {
		if alignment, known := assAlignment[strings.ToLower(v)]; known {
			add("Alignment", strconv.Itoa(alignment))
		}
	}
	return strings.Join(fields, `\,`)
}

func styleNumber(style map[string]any, key string) string {
	switch v := style[key].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// hexToASSColor converts "#RRGGBB" into the ASS "&HBBGGRR&" form. Unparseable
// values pass through unchanged.
func hexToASSColor(hex string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(trimmed) != 6 {
		return hex
	}
	if _, err := strconv.ParseUint(trimmed, 16, 32); err != nil {
		return hex
	}
	rr, gg, bb := trimmed[0:2], trimmed[2:4], trimmed[4:6]
	return "&H" + strings.ToUpper(bb+gg+rr) + "&"
}
