// Package ffmpeg builds and runs ffmpeg/ffprobe invocations. Every operation
// is a pure argv builder executed through an injectable Runner so tests can
// assert on commands without spawning processes.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes an argv vector and returns captured stdout/stderr.
type Runner interface {
	Run(ctx context.Context, argv []string) (stdout, stderr []byte, err error)
}

// ExecRunner spawns the process and waits. Nonzero exit is an error carrying
// the stderr tail.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, []byte, error) {
	if len(argv) == 0 {
		return nil, nil, fmt.Errorf("empty command")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, nil, fmt.Errorf("%s not found in PATH: %w", argv[0], err)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		slog.Error("ffmpeg command failed", "argv", argv, "stderr", string(Tail(stderr.Bytes(), 4096)))
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("%s failed: %w: %s", argv[0], err, Tail(stderr.Bytes(), 4096))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// Tail returns the last n bytes of b.
func Tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

// ProbeInfo is the subset of ffprobe output the pipelines use.
type ProbeInfo struct {
	Path        string   `json:"path"`
	Duration    float64  `json:"duration"`
	Bitrate     int64    `json:"bitrate"`
	VideoCodec  string   `json:"video_codec,omitempty"`
	VideoWidth  int      `json:"video_width,omitempty"`
	VideoHeight int      `json:"video_height,omitempty"`
	AudioCodecs []string `json:"audio_codecs,omitempty"`
}

// HasAudio reports whether any audio stream was found.
func (p ProbeInfo) HasAudio() bool {
	return len(p.AudioCodecs) > 0
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

// ProbeArgs builds the ffprobe invocation for ProbeMedia.
func ProbeArgs(path string) []string {
	return []string{
		"ffprobe", "-v", "error",
		"-show_entries", "format=duration:bit_rate",
		"-show_entries", "stream=index,codec_name,width,height,codec_type",
		"-of", "json",
		path,
	}
}

// ProbeMedia inspects a media file with ffprobe.
func ProbeMedia(ctx context.Context, runner Runner, path string) (ProbeInfo, error) {
	stdout, _, err := runner.Run(ctx, ProbeArgs(path))
	if err != nil {
		return ProbeInfo{}, fmt.Errorf("failed to probe %s: %w", path, err)
	}
	var raw ffprobeOutput
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return ProbeInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	info := ProbeInfo{Path: path}
	if raw.Format.Duration != "" {
		info.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	}
	if raw.Format.BitRate != "" {
		info.Bitrate, _ = strconv.ParseInt(raw.Format.BitRate, 10, 64)
	}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.VideoWidth = s.Width
				info.VideoHeight = s.Height
			}
		case "audio":
			if s.CodecName != "" {
				info.AudioCodecs = append(info.AudioCodecs, s.CodecName)
			}
		}
	}
	return info, nil
}

// ExtractAudioArgs copies the audio stream out of a container without
// re-encoding.
func ExtractAudioArgs(videoPath, audioPath string) []string {
	return []string{"ffmpeg", "-y", "-i", videoPath, "-vn", "-acodec", "copy", audioPath}
}

// ExtractAudio writes the container's audio stream to audioPath.
func ExtractAudio(ctx context.Context, runner Runner, videoPath, audioPath string) error {
	_, _, err := runner.Run(ctx, ExtractAudioArgs(videoPath, audioPath))
	return err
}

// ExtractAudioWAVArgs produces 16 kHz mono PCM for diarization input.
func ExtractAudioWAVArgs(videoPath, wavPath string) []string {
	return []string{
		"ffmpeg", "-y", "-v", "error",
		"-i", videoPath,
		"-vn", "-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le",
		wavPath,
	}
}

// ExtractAudioWAV extracts diarization-ready audio.
func ExtractAudioWAV(ctx context.Context, runner Runner, videoPath, wavPath string) error {
	_, _, err := runner.Run(ctx, ExtractAudioWAVArgs(videoPath, wavPath))
	return err
}

// CutClipArgs stream-copies the [start, end) span. A non-positive span
// yields a zero-duration output; downstream may reject it.
func CutClipArgs(videoPath string, start, end float64, outputPath string) []string {
	duration := end - start
	if duration < 0 {
		duration = 0
	}
	return []string{
		"ffmpeg", "-y",
		"-ss", formatSeconds(start),
		"-i", videoPath,
		"-t", formatSeconds(duration),
		"-c", "copy",
		outputPath,
	}
}

// CutClip extracts a clip by stream copy.
func CutClip(ctx context.Context, runner Runner, videoPath string, start, end float64, outputPath string) error {
	_, _, err := runner.Run(ctx, CutClipArgs(videoPath, start, end, outputPath))
	return err
}

// ReframeArgs converts the video to the target aspect ratio using the given
// strategy: "crop", "blur_bg" or "pad".
func ReframeArgs(videoPath, outputPath, aspectRatio, strategy string) []string {
	ratio := strings.ReplaceAll(aspectRatio, ":", "/")
	var filterChain string
	switch strategy {
	case "crop":
		filterChain = fmt.Sprintf("scale=-1:ih, crop=iw:iw/%s", ratio)
	case "blur_bg":
		filterChain = fmt.Sprintf(
			"split=2[main][bg];"+
				"[bg]scale=-1:ih,boxblur=20:1[bgblur];"+
				"[main]scale='if(gt(a,%s),iw/%s,%s*ih)':'if(gt(a,%s),ih,iw/%s)':force_original_aspect_ratio=decrease[fg];"+
				"[bgblur][fg]overlay=(W-w)/2:(H-h)/2",
			ratio, ratio, ratio, ratio, ratio,
		)
	default:
		filterChain = fmt.Sprintf(
			"scale=-1:ih, pad=ceil(iw*%s/2)*2:ceil(ih/%s/2)*2:(ow-iw)/2:(oh-ih)/2",
			ratio, ratio,
		)
	}
	return []string{"ffmpeg", "-y", "-i", videoPath, "-vf", filterChain, outputPath}
}

// Reframe re-encodes the video into the target aspect ratio.
func Reframe(ctx context.Context, runner Runner, videoPath, outputPath, aspectRatio, strategy string) error {
	_, _, err := runner.Run(ctx, ReframeArgs(videoPath, outputPath, aspectRatio, strategy))
	return err
}

// MergeOptions parameterizes MergeVideoAudio. Ducking 0 means no ducking;
// the API's boolean maps to 0.25.
type MergeOptions struct {
	Offset    float64
	Ducking   float64
	Normalize bool
	// VideoHasAudio toggles mixing with the container audio versus mapping
	// only the external track. Callers probe first.
	VideoHasAudio bool
}

// MergeVideoAudioArgs mixes an external audio track into a video.
func MergeVideoAudioArgs(videoPath, audioPath, outputPath string, opts MergeOptions) []string {
	args := []string{"ffmpeg", "-y", "-i", videoPath, "-itsoffset", formatSeconds(opts.Offset), "-i", audioPath}

	external := "[1:a]"
	var filters []string
	if opts.Ducking > 0 {
		filters = append(filters, fmt.Sprintf("[1:a]volume=%s[ducked]", formatSeconds(opts.Ducking)))
		external = "[ducked]"
	}

	if opts.VideoHasAudio {
		mix := fmt.Sprintf("[0:a]%samix=inputs=2:duration=first", external)
		if opts.Normalize {
			mix += ",loudnorm"
		}
		filters = append(filters, mix+"[aout]")
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
		args = append(args, "-map", "0:v:0", "-map", "[aout]")
	} else if opts.Normalize {
		filters = append(filters, external+"loudnorm[aout]")
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
		args = append(args, "-map", "0:v:0", "-map", "[aout]")
	} else if len(filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
		args = append(args, "-map", "0:v:0", "-map", external)
	} else {
		args = append(args, "-map", "0:v:0", "-map", "1:a")
	}

	args = append(args, "-c:v", "copy", "-c:a", "aac", "-shortest", outputPath)
	return args
}

// MergeVideoAudio mixes audio into video per opts.
func MergeVideoAudio(ctx context.Context, runner Runner, videoPath, audioPath, outputPath string, opts MergeOptions) error {
	_, _, err := runner.Run(ctx, MergeVideoAudioArgs(videoPath, audioPath, outputPath, opts))
	return err
}

// BurnSubtitlesArgs hard-burns a subtitle file into the video. The subtitles
// filter goes first in the -vf chain.
func BurnSubtitlesArgs(videoPath, subsPath, outputPath string, extraFilters []string) []string {
	filters := append([]string{fmt.Sprintf("subtitles=%s", subsPath)}, extraFilters...)
	return []string{"ffmpeg", "-y", "-i", videoPath, "-vf", strings.Join(filters, ","), outputPath}
}

// BurnSubtitles renders subtitles into the video frames.
func BurnSubtitles(ctx context.Context, runner Runner, videoPath, subsPath, outputPath string, extraFilters []string) error {
	_, _, err := runner.Run(ctx, BurnSubtitlesArgs(videoPath, subsPath, outputPath, extraFilters))
	return err
}

// ThumbnailArgs grabs one frame at 0.5s scaled to 320 wide.
func ThumbnailArgs(videoPath, outputPath string) []string {
	return []string{
		"ffmpeg", "-y", "-v", "error",
		"-ss", "0.5",
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", "scale=320:-1",
		outputPath,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
