package transcribe

import (
	"fmt"
	"sort"
	"strings"
)

// Word is a single transcribed word with timing in seconds.
type Word struct {
	Text        string   `json:"text"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability,omitempty"`
}

// Duration returns the word duration in seconds.
func (w Word) Duration() float64 {
	return w.End - w.Start
}

// Validate rejects words with non-positive duration or negative start.
func (w Word) Validate() error {
	if w.Start < 0 {
		return fmt.Errorf("word %q has negative start %v", w.Text, w.Start)
	}
	if w.End <= w.Start {
		return fmt.Errorf("word %q has non-positive duration: start=%v end=%v", w.Text, w.Start, w.End)
	}
	if w.Probability != nil && (*w.Probability < 0 || *w.Probability > 1) {
		return fmt.Errorf("word %q has probability outside [0,1]: %v", w.Text, *w.Probability)
	}
	return nil
}

// Result is a normalized word-timed transcription.
type Result struct {
	Words    []Word `json:"words"`
	Text     string `json:"text,omitempty"`
	Model    string `json:"model,omitempty"`
	Language string `json:"language,omitempty"`
}

// Duration returns the span covered by the words.
func (r Result) Duration() float64 {
	if len(r.Words) == 0 {
		return 0
	}
	return r.Words[len(r.Words)-1].End - r.Words[0].Start
}

// NewResult sorts the words by start time and enforces the pairwise
// non-overlap invariant.
func NewResult(words []Word, text, model, language string) (Result, error) {
	for _, w := range words {
		if err := w.Validate(); err != nil {
			return Result{}, err
		}
	}
	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		if curr.Start < prev.End {
			return Result{}, fmt.Errorf(
				"words overlap: %q [%v, %v) and %q [%v, %v)",
				prev.Text, prev.Start, prev.End, curr.Text, curr.Start, curr.End,
			)
		}
	}
	return Result{Words: sorted, Text: strings.TrimSpace(text), Model: model, Language: language}, nil
}
