package transcribe

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
)

// Backend identifies a transcription adapter.
type Backend string

const (
	BackendOpenAIWhisper      Backend = "openai_whisper"
	BackendFasterWhisper      Backend = "faster_whisper"
	BackendWhisperCPP         Backend = "whisper_cpp"
	BackendWhisperTimestamped Backend = "whisper_timestamped"
	BackendNoop               Backend = "noop"
)

// ParseBackend maps a raw option string onto a known backend.
func ParseBackend(raw string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(raw))) {
	case BackendOpenAIWhisper:
		return BackendOpenAIWhisper, nil
	case BackendFasterWhisper:
		return BackendFasterWhisper, nil
	case BackendWhisperCPP:
		return BackendWhisperCPP, nil
	case BackendWhisperTimestamped:
		return BackendWhisperTimestamped, nil
	case BackendNoop, "":
		return BackendNoop, nil
	}
	return BackendNoop, fmt.Errorf("unknown transcription backend %q", raw)
}

// Config describes how audio should be transcribed.
type Config struct {
	Backend  Backend
	Model    string
	Language string // empty means auto-detect
	Device   string // device hint for local backends, e.g. "cpu"
}

// Transcriber runs a backend over a media file.
type Transcriber interface {
	Transcribe(path string, cfg Config) (Result, error)
}

var modelAliases = map[string]string{
	"whisper-large-v3":        "large-v3",
	"openai/whisper-large-v3": "large-v3",
	"whisper-large-v2":        "large-v2",
	"openai/whisper-large-v2": "large-v2",
	"whisper-large":           "large",
	"openai/whisper-large":    "large",
	"whisper-medium":          "medium",
	"openai/whisper-medium":   "medium",
	"whisper-small":           "small",
	"openai/whisper-small":    "small",
	"whisper-base":            "base",
	"openai/whisper-base":     "base",
	"whisper-tiny":            "tiny",
	"openai/whisper-tiny":     "tiny",
}

// NormalizeModelName maps UI/config-friendly model names onto backend ids.
func NormalizeModelName(model string) string {
	raw := strings.TrimSpace(model)
	if raw == "" {
		return raw
	}
	if alias, ok := modelAliases[strings.ToLower(raw)]; ok {
		return alias
	}
	return raw
}

// RawWord is a vendor word payload before normalization. Vendors disagree on
// the text key, so both "word" and "text" are accepted.
type RawWord struct {
	Word        string `json:"word"`
	Text        string `json:"text"`
	Start       any    `json:"start"`
	End         any    `json:"end"`
	Probability any    `json:"probability"`
}

// RawSegment is a vendor segment payload before normalization.
type RawSegment struct {
	Text  string    `json:"text"`
	Start any       `json:"start"`
	End   any       `json:"end"`
	Words []RawWord `json:"words"`
}

// Normalize adapts vendor word-timed segments into a Result. Malformed words
// are discarded; the full text is the space-joined segment texts.
func Normalize(segments []RawSegment, model, language string) Result {
	var words []Word
	var segmentTexts []string
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			segmentTexts = append(segmentTexts, text)
		}
		for _, raw := range seg.Words {
			start, okStart := toFloat(raw.Start)
			end, okEnd := toFloat(raw.End)
			if !okStart || !okEnd {
				slog.Debug("Skipping malformed word payload", "word", raw.Word)
				continue
			}
			text := strings.TrimSpace(raw.Word)
			if text == "" {
				text = strings.TrimSpace(raw.Text)
			}
			word := Word{Text: text, Start: start, End: end, Probability: toProbability(raw.Probability)}
			if err := word.Validate(); err != nil {
				slog.Debug("Skipping invalid word", "error", err)
				continue
			}
			words = append(words, word)
		}
	}
	return Result{
		Words:    words,
		Text:     strings.TrimSpace(strings.Join(segmentTexts, " ")),
		Model:    model,
		Language: language,
	}
}

// Noop returns a single synthetic word covering the first second. It is the
// safe fallback when a real backend fails or offline mode forbids it.
func Noop(path string, cfg Config) Result {
	name := filepath.Base(path)
	return Result{
		Words:    []Word{{Text: name, Start: 0, End: 1}},
		Text:     name,
		Model:    cfg.Model,
		Language: cfg.Language,
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func toProbability(v any) *float64 {
	f, ok := toFloat(v)
	if !ok || f < 0 || f > 1 {
		return nil
	}
	return &f
}
