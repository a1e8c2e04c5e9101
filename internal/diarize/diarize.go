// Package diarize attributes speaker labels to subtitle lines.
package diarize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"reframe/internal/subtitles"
)

// Backend identifies a diarization adapter.
type Backend string

const (
	BackendNoop        Backend = "noop"
	BackendPyannote    Backend = "pyannote"
	BackendSpeechBrain Backend = "speechbrain"
)

// ParseBackend maps a raw option string onto a known backend.
func ParseBackend(raw string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(raw))) {
	case BackendNoop, "":
		return BackendNoop, nil
	case BackendPyannote:
		return BackendPyannote, nil
	case BackendSpeechBrain:
		return BackendSpeechBrain, nil
	}
	return BackendNoop, fmt.Errorf("unknown diarization backend %q", raw)
}

// Config describes how diarization should run.
type Config struct {
	Backend            Backend
	Model              string
	HuggingFaceToken   string
	MinSegmentDuration float64
}

// SpeakerSegment is one diarized turn.
type SpeakerSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarizer produces speaker segments for an audio file.
type Diarizer interface {
	Diarize(audioPath string, cfg Config) ([]SpeakerSegment, error)
}

// NoopDiarizer returns no speaker labels. Default, offline-safe.
type NoopDiarizer struct{}

func (NoopDiarizer) Diarize(string, Config) ([]SpeakerSegment, error) {
	return nil, nil
}

// CommandDiarizer adapts an external diarization CLI (the pyannote runner)
// that prints speaker segment JSON on stdout.
type CommandDiarizer struct {
	Argv []string
}

func (c CommandDiarizer) Diarize(audioPath string, cfg Config) ([]SpeakerSegment, error) {
	if len(c.Argv) == 0 {
		return nil, fmt.Errorf("diarization command not configured")
	}
	argv := append(append([]string{}, c.Argv...), audioPath)
	cmd := exec.Command(argv[0], argv[1:]...)
	if cfg.HuggingFaceToken != "" {
		cmd.Env = append(os.Environ(), "HF_TOKEN="+cfg.HuggingFaceToken)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("diarization command failed: %w: %s", err, stderr.String())
	}
	var segments []SpeakerSegment
	if err := json.Unmarshal(stdout.Bytes(), &segments); err != nil {
		return nil, fmt.Errorf("failed to parse diarization output: %w", err)
	}
	var kept []SpeakerSegment
	for _, seg := range segments {
		if cfg.MinSegmentDuration > 0 && seg.End-seg.Start < cfg.MinSegmentDuration {
			continue
		}
		kept = append(kept, seg)
	}
	return kept, nil
}

// New returns the diarizer for a backend.
func New(backend Backend) Diarizer {
	switch backend {
	case BackendPyannote:
		return CommandDiarizer{Argv: commandFromEnv("PYANNOTE_CMD")}
	case BackendSpeechBrain:
		return CommandDiarizer{Argv: commandFromEnv("SPEECHBRAIN_CMD")}
	}
	return NoopDiarizer{}
}

func commandFromEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// AssignSpeakers attaches speaker labels to lines by maximum temporal
// overlap. Ties keep the first segment in iteration order; a line with no
// positive overlap keeps an empty speaker.
func AssignSpeakers(lines []subtitles.Line, segments []SpeakerSegment) []subtitles.Line {
	out := make([]subtitles.Line, 0, len(lines))
	if len(segments) == 0 {
		return append(out, lines...)
	}
	for _, line := range lines {
		best := ""
		bestOverlap := 0.0
		for _, seg := range segments {
			overlap := min(line.End, seg.End) - max(line.Start, seg.Start)
			if overlap > bestOverlap {
				bestOverlap = overlap
				best = seg.Speaker
			}
		}
		line.Speaker = best
		out = append(out, line)
	}
	return out
}
