package transcribe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"time"
)

// NoopTranscriber emits the synthetic single-word result.
type NoopTranscriber struct{}

func (NoopTranscriber) Transcribe(path string, cfg Config) (Result, error) {
	return Noop(path, cfg), nil
}

// CommandTranscriber adapts a local CLI backend (whisper.cpp, faster-whisper,
// whisper-timestamped wrappers) that prints segment JSON on stdout. The argv
// receives the media path as its final argument.
type CommandTranscriber struct {
	Argv []string
}

func (c CommandTranscriber) Transcribe(path string, cfg Config) (Result, error) {
	if len(c.Argv) == 0 {
		return Result{}, fmt.Errorf("transcription command not configured")
	}
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("media file missing: %w", err)
	}
	argv := append(append([]string{}, c.Argv...), path)
	cmd := exec.Command(argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("transcription command failed: %w: %s", err, tail(stderr.Bytes(), 4096))
	}
	var segments []RawSegment
	if err := json.Unmarshal(stdout.Bytes(), &segments); err != nil {
		return Result{}, fmt.Errorf("failed to parse transcription output: %w", err)
	}
	return Normalize(segments, NormalizeModelName(cfg.Model), cfg.Language), nil
}

// OpenAITranscriber calls the hosted whisper transcription endpoint. The
// HTTP client is injectable so tests can stub the network.
type OpenAITranscriber struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

type openAIWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type openAIResponse struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Words    []openAIWord `json:"words"`
}

func (o OpenAITranscriber) Transcribe(path string, cfg Config) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name())
	if err != nil {
		return Result{}, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Result{}, fmt.Errorf("failed to read media file: %w", err)
	}
	_ = writer.WriteField("model", cfg.Model)
	_ = writer.WriteField("response_format", "verbose_json")
	_ = writer.WriteField("timestamp_granularities[]", "word")
	if cfg.Language != "" {
		_ = writer.WriteField("language", cfg.Language)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to finish upload form: %w", err)
	}

	base := o.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	req, err := http.NewRequest(http.MethodPost, base+"/audio/transcriptions", &body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("transcription request failed: HTTP %d: %s", resp.StatusCode, payload)
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("failed to decode transcription response: %w", err)
	}

	segment := RawSegment{Text: parsed.Text}
	for _, w := range parsed.Words {
		segment.Words = append(segment.Words, RawWord{Word: w.Word, Start: w.Start, End: w.End})
	}
	result := Normalize([]RawSegment{segment}, cfg.Model, cfg.Language)
	if result.Language == "" {
		result.Language = parsed.Language
	}
	return result, nil
}

// New returns the transcriber for a backend. Local CLI backends read their
// argv from the environment; an unconfigured backend fails at Transcribe so
// the worker's noop fallback can record the warning.
func New(backend Backend) Transcriber {
	switch backend {
	case BackendOpenAIWhisper:
		return OpenAITranscriber{APIKey: os.Getenv("OPENAI_API_KEY")}
	case BackendFasterWhisper:
		return CommandTranscriber{Argv: commandFromEnv("FASTER_WHISPER_CMD")}
	case BackendWhisperCPP:
		return CommandTranscriber{Argv: commandFromEnv("WHISPER_CPP_CMD")}
	case BackendWhisperTimestamped:
		return CommandTranscriber{Argv: commandFromEnv("WHISPER_TIMESTAMPED_CMD")}
	}
	return NoopTranscriber{}
}

func commandFromEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var argv []string
	for _, field := range bytes.Fields([]byte(raw)) {
		argv = append(argv, string(field))
	}
	return argv
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
