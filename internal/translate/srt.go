package translate

import (
	"fmt"

	"reframe/internal/subtitles"
	"reframe/internal/transcribe"
)

// TranslateSRT translates every cue of an SRT document and re-serializes it
// with the original timings.
func TranslateSRT(srtText string, translator Translator, src, tgt string) (string, error) {
	lines, err := subtitles.ParseSRT(srtText)
	if err != nil {
		return "", fmt.Errorf("failed to parse SRT: %w", err)
	}
	texts := make([]string, 0, len(lines))
	for _, line := range lines {
		texts = append(texts, line.Text())
	}
	translated, err := translator.TranslateBatch(texts, src, tgt)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if len(translated) != len(lines) {
		return "", fmt.Errorf("translator returned %d entries for %d cues", len(translated), len(lines))
	}
	out := make([]subtitles.Line, 0, len(lines))
	for i, line := range lines {
		out = append(out, subtitles.Line{
			Start:   line.Start,
			End:     line.End,
			Speaker: line.Speaker,
			Words:   []transcribe.Word{{Text: translated[i], Start: line.Start, End: line.End}},
		})
	}
	return subtitles.ToSRT(out), nil
}

// TranslateSRTBilingual emits original and translated text per cue,
// separated by the ASS hard line break.
func TranslateSRTBilingual(srtText string, translator Translator, src, tgt string) (string, error) {
	const separator = `\N`
	lines, err := subtitles.ParseSRT(srtText)
	if err != nil {
		return "", fmt.Errorf("failed to parse SRT: %w", err)
	}
	texts := make([]string, 0, len(lines))
	for _, line := range lines {
		texts = append(texts, line.Text())
	}
	translated, err := translator.TranslateBatch(texts, src, tgt)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if len(translated) != len(lines) {
		return "", fmt.Errorf("translator returned %d entries for %d cues", len(translated), len(lines))
	}
	out := make([]subtitles.Line, 0, len(lines))
	for i, line := range lines {
		combined := line.Text() + separator + translated[i]
		out = append(out, subtitles.Line{
			Start:   line.Start,
			End:     line.End,
			Speaker: line.Speaker,
			Words:   []transcribe.Word{{Text: combined, Start: line.Start, End: line.End}},
		})
	}
	return subtitles.ToSRT(out), nil
}
