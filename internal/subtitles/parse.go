package subtitles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reframe/internal/transcribe"
)

var (
	srtTimeRe = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2}),(\d{3})`)
	vttTimeRe = regexp.MustCompile(`^(?:(\d{2}):)?(\d{2}):(\d{2})\.(\d{3})`)
	indexRe   = regexp.MustCompile(`^\d+$`)
	blockRe   = regexp.MustCompile(`\n\s*\n`)
)

func parseSRTTimestamp(ts string) (float64, error) {
	m := srtTimeRe.FindStringSubmatch(strings.TrimSpace(ts))
	if m == nil {
		return 0, fmt.Errorf("invalid SRT timestamp: %q", ts)
	}
	return clockToSeconds(m[1], m[2], m[3], m[4]), nil
}

func parseVTTTimestamp(ts string) (float64, error) {
	m := vttTimeRe.FindStringSubmatch(strings.TrimSpace(ts))
	if m == nil {
		return 0, fmt.Errorf("invalid VTT timestamp: %q", ts)
	}
	return clockToSeconds(m[1], m[2], m[3], m[4]), nil
}

func clockToSeconds(h, m, s, ms string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	secs, _ := strconv.Atoi(s)
	millis, _ := strconv.Atoi(ms)
	return float64(hours)*3600 + float64(minutes)*60 + float64(secs) + float64(millis)/1000
}

// ParseSRT parses SubRip text into lines. Each cue becomes one Line holding a
// single word that spans the cue.
func ParseSRT(text string) ([]Line, error) {
	var lines []Line
	for _, block := range blockRe.Split(strings.TrimSpace(text), -1) {
		parts := strings.Split(strings.TrimSpace(block), "\n")
		if len(parts) < 2 {
			continue
		}
		if indexRe.MatchString(strings.TrimSpace(parts[0])) {
			parts = parts[1:]
		}
		if len(parts) == 0 {
			continue
		}
		timing := parts[0]
		var contentParts []string
		for _, p := range parts[1:] {
			contentParts = append(contentParts, strings.TrimSpace(p))
		}
		content := strings.Join(contentParts, " ")

		startRaw, endRaw, ok := strings.Cut(timing, "-->")
		if !ok {
			return nil, fmt.Errorf("invalid timing line: %q", timing)
		}
		start, err := parseSRTTimestamp(startRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid timing line %q: %w", timing, err)
		}
		end, err := parseSRTTimestamp(endRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid timing line %q: %w", timing, err)
		}
		lines = append(lines, Line{
			Start: start,
			End:   end,
			Words: []transcribe.Word{{Text: content, Start: start, End: end}},
		})
	}
	return lines, nil
}

// ParseVTT parses a basic WebVTT string. It supports the subset produced by
// ToVTT and additionally tolerates cue identifiers, NOTE blocks and timing
// settings after the end timestamp.
func ParseVTT(text string) ([]Line, error) {
	text = strings.TrimPrefix(text, "\uFEFF")
	var out []Line

	var timing string
	var cueLines []string
	inNote := false

	flush := func() error {
		if timing == "" {
			cueLines = nil
			return nil
		}
		startRaw, endRaw, ok := strings.Cut(timing, "-->")
		if !ok {
			return fmt.Errorf("invalid VTT timing line: %q", timing)
		}
		startField := strings.Fields(strings.TrimSpace(startRaw))
		endField := strings.Fields(strings.TrimSpace(endRaw))
		if len(startField) == 0 || len(endField) == 0 {
			return fmt.Errorf("invalid VTT timing line: %q", timing)
		}
		start, err := parseVTTTimestamp(startField[0])
		if err != nil {
			return fmt.Errorf("invalid VTT timing line %q: %w", timing, err)
		}
		// Settings after the end timestamp are ignored.
		end, err := parseVTTTimestamp(endField[0])
		if err != nil {
			return fmt.Errorf("invalid VTT timing line %q: %w", timing, err)
		}

		var parts []string
		for _, l := range cueLines {
			if s := strings.TrimSpace(l); s != "" {
				parts = append(parts, s)
			}
		}
		content := strings.TrimSpace(strings.Join(parts, " "))
		if content != "" {
			out = append(out, Line{
				Start: start,
				End:   end,
				Words: []transcribe.Word{{Text: content, Start: start, End: end}},
			})
		}
		timing = ""
		cueLines = nil
		return nil
	}

	for _, raw := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(raw)

		if stripped == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			inNote = false
			continue
		}
		if strings.HasPrefix(stripped, "WEBVTT") {
			continue
		}
		if strings.HasPrefix(stripped, "NOTE") {
			inNote = true
			continue
		}
		if inNote {
			continue
		}
		if strings.Contains(stripped, "-->") {
			if err := flush(); err != nil {
				return nil, err
			}
			timing = stripped
			continue
		}
		if timing == "" {
			// Cue identifier or stray metadata line.
			continue
		}
		cueLines = append(cueLines, stripped)
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}
