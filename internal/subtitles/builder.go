package subtitles

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// formatTimestamp renders seconds as HH:MM:SS,mmm (SRT punctuation).
func formatTimestamp(seconds float64) string {
	millis := int(math.Round(seconds * 1000))
	if millis < 0 {
		millis = 0
	}
	hours := millis / 3_600_000
	rem := millis % 3_600_000
	minutes := rem / 60_000
	rem %= 60_000
	secs := rem / 1_000
	ms := rem % 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, ms)
}

// formatASSTimestamp renders seconds as H:MM:SS.cc.
func formatASSTimestamp(seconds float64) string {
	centis := int(math.Round(seconds * 100))
	if centis < 0 {
		centis = 0
	}
	hours := centis / 360_000
	rem := centis % 360_000
	minutes := rem / 6_000
	rem %= 6_000
	secs := rem / 100
	cs := rem % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, cs)
}

// ToSRT serializes lines as SubRip. A speaker label becomes a
// "SPEAKER_XX: " prefix on the payload line.
func ToSRT(lines []Line) string {
	var out []string
	for idx, line := range lines {
		text := line.Text()
		if line.Speaker != "" {
			text = line.Speaker + ": " + text
		}
		out = append(out, fmt.Sprintf("%d", idx+1))
		out = append(out, fmt.Sprintf("%s --> %s", formatTimestamp(line.Start), formatTimestamp(line.End)))
		out = append(out, text)
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

// ToVTT serializes lines as WebVTT. Same timestamps as SRT with a dot before
// the milliseconds.
func ToVTT(lines []Line) string {
	out := []string{"WEBVTT", ""}
	for _, line := range lines {
		start := strings.ReplaceAll(formatTimestamp(line.Start), ",", ".")
		end := strings.ReplaceAll(formatTimestamp(line.End), ",", ".")
		text := line.Text()
		if line.Speaker != "" {
			text = line.Speaker + ": " + text
		}
		out = append(out, fmt.Sprintf("%s --> %s", start, end))
		out = append(out, text)
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}

const assHeader = `[Script Info]
ScriptType: v4.00+
PlayResX: 1920
PlayResY: 1080

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,48,&H00FFFFFF,&H0000FFFF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,0,2,10,10,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`

// ToASS serializes lines as an ASS script with a single Default style. The
// speaker goes into the Name field; commas there would break the event line
// so they are replaced with spaces.
func ToASS(lines []Line) string {
	var b strings.Builder
	b.WriteString(assHeader)
	for _, line := range lines {
		name := strings.ReplaceAll(line.Speaker, ",", " ")
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,%s,0,0,0,,%s\n",
			formatASSTimestamp(line.Start), formatASSTimestamp(line.End), name, line.Text())
	}
	return b.String()
}

// ToASSKaraoke serializes lines with per-word {\kD} timing tags. When the
// line carries real word timings each word gets its own duration; otherwise
// the line total is split across tokens proportionally to token length.
func ToASSKaraoke(lines []Line) string {
	var b strings.Builder
	b.WriteString(assHeader)
	for _, line := range lines {
		name := strings.ReplaceAll(line.Speaker, ",", " ")
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,%s,0,0,0,,%s\n",
			formatASSTimestamp(line.Start), formatASSTimestamp(line.End), name, karaokeText(line))
	}
	return b.String()
}

func karaokeText(line Line) string {
	var parts []string
	if len(line.Words) > 1 {
		for _, w := range line.Words {
			cs := int(math.Round((w.End - w.Start) * 100))
			if cs < 1 {
				cs = 1
			}
			parts = append(parts, fmt.Sprintf("{\\k%d}%s", cs, w.Text))
		}
		return strings.Join(parts, " ")
	}

	tokens := strings.Fields(line.Text())
	if len(tokens) == 0 {
		return ""
	}
	totalCs := int(math.Round(line.Duration() * 100))
	durations := allocateCentis(tokens, totalCs)
	for i, tok := range tokens {
		parts = append(parts, fmt.Sprintf("{\\k%d}%s", durations[i], tok))
	}
	return strings.Join(parts, " ")
}

// allocateCentis splits totalCs across tokens proportionally to token length
// so the durations sum to totalCs. Every token gets at least 1 cs; leftover
// centiseconds go to the longest tokens first.
func allocateCentis(tokens []string, totalCs int) []int {
	durations := make([]int, len(tokens))
	totalLen := 0
	for _, tok := range tokens {
		totalLen += len(tok)
	}
	if totalLen == 0 {
		totalLen = len(tokens)
	}

	allocated := 0
	for i, tok := range tokens {
		d := totalCs * len(tok) / totalLen
		if d < 1 {
			d = 1
		}
		durations[i] = d
		allocated += d
	}

	remaining := totalCs - allocated
	if remaining <= 0 {
		return durations
	}

	// Longest tokens absorb the rounding remainder, stable on ties.
	order := make([]int, len(tokens))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(tokens[order[a]]) > len(tokens[order[b]])
	})
	for remaining > 0 {
		for _, idx := range order {
			if remaining == 0 {
				break
			}
			durations[idx]++
			remaining--
		}
	}
	return durations
}
