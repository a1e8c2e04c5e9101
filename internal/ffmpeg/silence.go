package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// SilenceInterval is one detected span of silence.
type SilenceInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DetectSilenceArgs runs silencedetect and discards the media output.
func DetectSilenceArgs(mediaPath string) []string {
	return []string{
		"ffmpeg", "-i", mediaPath,
		"-af", "silencedetect=noise=-30dB:d=0.5",
		"-f", "null", "-",
	}
}

// DetectSilence parses silencedetect stderr output. A trailing open interval
// is closed at the probed file duration.
func DetectSilence(ctx context.Context, runner Runner, mediaPath string) ([]SilenceInterval, error) {
	_, stderr, err := runner.Run(ctx, DetectSilenceArgs(mediaPath))
	if err != nil {
		return nil, fmt.Errorf("silence detection failed: %w", err)
	}
	intervals, open := ParseSilence(string(stderr))
	if open != nil {
		info, err := ProbeMedia(ctx, runner, mediaPath)
		if err != nil {
			return nil, fmt.Errorf("failed to close trailing silence interval: %w", err)
		}
		intervals = append(intervals, SilenceInterval{Start: *open, End: info.Duration})
	}
	return intervals, nil
}

// ParseSilence extracts silence_start/silence_end pairs from ffmpeg stderr.
// The second return is the start of an unclosed trailing interval, if any.
func ParseSilence(stderr string) ([]SilenceInterval, *float64) {
	var intervals []SilenceInterval
	var open *float64
	for _, line := range strings.Split(stderr, "\n") {
		if idx := strings.Index(line, "silence_start:"); idx >= 0 {
			if v, ok := parseTrailingFloat(line[idx+len("silence_start:"):]); ok {
				start := v
				open = &start
			}
			continue
		}
		if idx := strings.Index(line, "silence_end:"); idx >= 0 {
			if v, ok := parseTrailingFloat(line[idx+len("silence_end:"):]); ok && open != nil {
				intervals = append(intervals, SilenceInterval{Start: *open, End: v})
				open = nil
			}
		}
	}
	return intervals, open
}

// Coverage returns the fraction of [start, end) covered by the intervals.
func Coverage(intervals []SilenceInterval, start, end float64) float64 {
	if end <= start {
		return 0
	}
	var covered float64
	for _, iv := range intervals {
		lo := max(start, iv.Start)
		hi := min(end, iv.End)
		if hi > lo {
			covered += hi - lo
		}
	}
	return covered / (end - start)
}

func parseTrailingFloat(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
