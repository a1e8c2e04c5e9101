package subtitles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reframe/internal/transcribe"
)

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00,000", formatTimestamp(0))
	assert.Equal(t, "00:00:01,500", formatTimestamp(1.5))
	assert.Equal(t, "01:02:03,004", formatTimestamp(3723.004))
	assert.Equal(t, "00:00:00,000", formatTimestamp(-1))
	// millisecond rounding, not truncation
	assert.Equal(t, "00:00:00,001", formatTimestamp(0.0009))
}

func TestFormatASSTimestamp(t *testing.T) {
	assert.Equal(t, "0:00:00.00", formatASSTimestamp(0))
	assert.Equal(t, "0:00:01.50", formatASSTimestamp(1.5))
	assert.Equal(t, "1:02:03.40", formatASSTimestamp(3723.4))
}

func TestToSRT(t *testing.T) {
	lines := []Line{
		{Start: 0, End: 1.5, Words: []transcribe.Word{{Text: "hello", Start: 0, End: 1.5}}},
		{Start: 2, End: 3, Speaker: "SPEAKER_00", Words: []transcribe.Word{{Text: "world", Start: 2, End: 3}}},
	}
	srt := ToSRT(lines)
	assert.Contains(t, srt, "1\n00:00:00,000 --> 00:00:01,500\nhello\n")
	assert.Contains(t, srt, "2\n00:00:02,000 --> 00:00:03,000\nSPEAKER_00: world\n")
}

func TestToVTT(t *testing.T) {
	lines := []Line{{Start: 0, End: 1, Words: []transcribe.Word{{Text: "hi", Start: 0, End: 1}}}}
	vtt := ToVTT(lines)
	assert.True(t, strings.HasPrefix(vtt, "WEBVTT\n"))
	assert.Contains(t, vtt, "00:00:00.000 --> 00:00:01.000")
	assert.NotContains(t, vtt, ",")
}

func TestToASS(t *testing.T) {
	lines := []Line{{Start: 0, End: 1, Speaker: "A,B", Words: []transcribe.Word{{Text: "hey", Start: 0, End: 1}}}}
	ass := ToASS(lines)
	assert.Contains(t, ass, "[Script Info]")
	assert.Contains(t, ass, "Style: Default")
	assert.Contains(t, ass, "Dialogue: 0,0:00:00.00,0:00:01.00,Default,A B,0,0,0,,hey")
}

func TestToASSKaraoke(t *testing.T) {
	t.Run("Real word timings", func(t *testing.T) {
		lines := []Line{{
			Start: 0, End: 1.0,
			Words: []transcribe.Word{
				{Text: "one", Start: 0, End: 0.4},
				{Text: "two", Start: 0.4, End: 1.0},
			},
		}}
		ass := ToASSKaraoke(lines)
		assert.Contains(t, ass, `{\k40}one {\k60}two`)
	})

	t.Run("Sub-centisecond word floors at 1", func(t *testing.T) {
		lines := []Line{{
			Start: 0, End: 0.01,
			Words: []transcribe.Word{
				{Text: "a", Start: 0, End: 0.001},
				{Text: "b", Start: 0.001, End: 0.01},
			},
		}}
		ass := ToASSKaraoke(lines)
		assert.Contains(t, ass, `{\k1}a`)
	})

	t.Run("Single word line splits by token length", func(t *testing.T) {
		lines := []Line{{
			Start: 0, End: 1.0,
			Words: []transcribe.Word{{Text: "go far", Start: 0, End: 1.0}},
		}}
		ass := ToASSKaraoke(lines)
		assert.Contains(t, ass, `{\k40}go {\k60}far`)
	})
}

func TestAllocateCentis(t *testing.T) {
	t.Run("Sums to the line total", func(t *testing.T) {
		tokens := []string{"a", "bb", "ccc"}
		durations := allocateCentis(tokens, 101)
		total := 0
		for _, d := range durations {
			total += d
		}
		assert.Equal(t, 101, total)
	})

	t.Run("Remainder goes to longest tokens first", func(t *testing.T) {
		durations := allocateCentis([]string{"aa", "bbbb"}, 101)
		// base split: 33 and 67, remainder 1 lands on the longer token
		require.Len(t, durations, 2)
		assert.Equal(t, 33, durations[0])
		assert.Equal(t, 68, durations[1])
	})

	t.Run("Every token gets at least one centisecond", func(t *testing.T) {
		durations := allocateCentis([]string{"a", "b", "c"}, 1)
		for _, d := range durations {
			assert.GreaterOrEqual(t, d, 1)
		}
	})
}
