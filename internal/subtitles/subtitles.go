// Package subtitles groups word-timed transcriptions into display lines and
// serializes them to SRT, WebVTT and ASS (plain and karaoke).
package subtitles

import (
	"strings"

	"reframe/internal/transcribe"
)

// Line is a single subtitle cue. Speaker is empty when no diarization label
// was assigned.
type Line struct {
	Start   float64          `json:"start"`
	End     float64          `json:"end"`
	Words   []transcribe.Word `json:"words"`
	Speaker string           `json:"speaker,omitempty"`
}

// Text joins the word texts with single spaces.
func (l Line) Text() string {
	parts := make([]string, 0, len(l.Words))
	for _, w := range l.Words {
		parts = append(parts, w.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Duration returns the cue duration, never negative.
func (l Line) Duration() float64 {
	if l.End < l.Start {
		return 0
	}
	return l.End - l.Start
}

// GroupingConfig bounds how many words end up on one line.
type GroupingConfig struct {
	MaxCharsPerLine int
	MaxWordsPerLine int
	MaxDuration     float64
	MaxGap          float64
}

// DefaultGroupingConfig mirrors the caption defaults.
func DefaultGroupingConfig() GroupingConfig {
	return GroupingConfig{
		MaxCharsPerLine: 40,
		MaxWordsPerLine: 12,
		MaxDuration:     6.0,
		MaxGap:          0.6,
	}
}

// GroupWords splits words into lines greedily, starting a new line whenever
// appending the next word would violate any configured bound.
func GroupWords(words []transcribe.Word, cfg GroupingConfig) []Line {
	var lines []Line
	if len(words) == 0 {
		return lines
	}

	var current []transcribe.Word
	currentStart := words[0].Start
	lastEnd := words[0].End

	flush := func() {
		if len(current) > 0 {
			line := Line{Start: currentStart, End: lastEnd}
			line.Words = append(line.Words, current...)
			lines = append(lines, line)
		}
		current = current[:0]
	}

	for _, w := range words {
		if len(current) == 0 {
			currentStart = w.Start
			lastEnd = w.End
			current = append(current, w)
			continue
		}

		candidateLen := len(w.Text)
		for _, cw := range current {
			candidateLen += len(cw.Text) + 1
		}
		tooManyChars := candidateLen > cfg.MaxCharsPerLine
		tooManyWords := len(current)+1 > cfg.MaxWordsPerLine
		tooLong := (w.End - currentStart) > cfg.MaxDuration
		tooFar := (w.Start - lastEnd) > cfg.MaxGap

		if tooManyChars || tooManyWords || tooLong || tooFar {
			flush()
			currentStart = w.Start
			lastEnd = w.End
			current = append(current, w)
			continue
		}

		current = append(current, w)
		lastEnd = w.End
	}

	flush()
	return lines
}
