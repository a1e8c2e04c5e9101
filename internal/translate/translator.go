// Package translate converts subtitle text between languages.
package translate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Translator converts a batch of strings from src to tgt.
type Translator interface {
	TranslateBatch(texts []string, src, tgt string) ([]string, error)
}

// NoOpTranslator returns the input unchanged. Local fallback.
type NoOpTranslator struct{}

func (NoOpTranslator) TranslateBatch(texts []string, src, tgt string) ([]string, error) {
	return texts, nil
}

// LocalTranslator shells out to the argos-translate CLI. Construction fails
// when the binary or the language pair is unavailable so callers can fall
// back to NoOpTranslator with a warning.
type LocalTranslator struct {
	binary string
	src    string
	tgt    string
}

// NewLocalTranslator verifies the argos-translate binary and the language
// pack for src->tgt are installed.
func NewLocalTranslator(src, tgt string) (*LocalTranslator, error) {
	binary, err := exec.LookPath("argos-translate")
	if err != nil {
		return nil, fmt.Errorf("argos-translate is not installed: %w", err)
	}
	out, err := exec.Command(binary, "--list-installed").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list argos language packs: %w", err)
	}
	pair := fmt.Sprintf("%s -> %s", src, tgt)
	if !strings.Contains(string(out), pair) {
		return nil, fmt.Errorf("argos-translate missing language pack for %s->%s", src, tgt)
	}
	return &LocalTranslator{binary: binary, src: src, tgt: tgt}, nil
}

func (l *LocalTranslator) TranslateBatch(texts []string, src, tgt string) ([]string, error) {
	results := make([]string, 0, len(texts))
	for _, text := range texts {
		cmd := exec.Command(l.binary, "--from-lang", src, "--to-lang", tgt)
		cmd.Stdin = strings.NewReader(text)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("argos-translate failed: %w: %s", err, stderr.String())
		}
		translated := strings.TrimSpace(stdout.String())
		if translated == "" {
			translated = text
		}
		results = append(results, translated)
	}
	return results, nil
}

// ChatClient is the chat-completion dependency for CloudTranslator.
type ChatClient interface {
	ChatCompletion(ctx context.Context, model string, system, user string) (string, error)
}

// CloudTranslator translates through an LLM-style chat client. Provider
// failures fall back to the original text per entry.
type CloudTranslator struct {
	Client       ChatClient
	Model        string
	SystemPrompt string
}

func (c CloudTranslator) TranslateBatch(texts []string, src, tgt string) ([]string, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("cloud translator requires a chat client")
	}
	system := c.SystemPrompt
	if system == "" {
		system = fmt.Sprintf("You are a translation engine. Translate user text from %s to %s. Reply with the translated text only.", src, tgt)
	}
	results := make([]string, 0, len(texts))
	for _, text := range texts {
		user := fmt.Sprintf("Translate this from %s to %s. Reply with translation only: %s", src, tgt, text)
		content, err := c.Client.ChatCompletion(context.Background(), c.Model, system, user)
		if err != nil || strings.TrimSpace(content) == "" {
			results = append(results, text)
			continue
		}
		results = append(results, strings.TrimSpace(content))
	}
	return results, nil
}
