package diarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reframe/internal/subtitles"
	"reframe/internal/transcribe"
)

func line(start, end float64) subtitles.Line {
	return subtitles.Line{
		Start: start,
		End:   end,
		Words: []transcribe.Word{{Text: "w", Start: start, End: end}},
	}
}

func TestParseDiarizeBackend(t *testing.T) {
	got, err := ParseBackend("")
	assert.NoError(t, err)
	assert.Equal(t, BackendNoop, got)

	got, err = ParseBackend("PyAnnote")
	assert.NoError(t, err)
	assert.Equal(t, BackendPyannote, got)

	_, err = ParseBackend("mystery")
	assert.Error(t, err)
}

func TestAssignSpeakers(t *testing.T) {
	segments := []SpeakerSegment{
		{Start: 0, End: 5, Speaker: "SPEAKER_00"},
		{Start: 5, End: 10, Speaker: "SPEAKER_01"},
	}

	t.Run("Maximum overlap wins", func(t *testing.T) {
		lines := AssignSpeakers([]subtitles.Line{line(4, 7)}, segments)
		require.Len(t, lines, 1)
		// 1s with SPEAKER_00, 2s with SPEAKER_01
		assert.Equal(t, "SPEAKER_01", lines[0].Speaker)
	})

	t.Run("Tie keeps the first segment", func(t *testing.T) {
		lines := AssignSpeakers([]subtitles.Line{line(4, 6)}, segments)
		require.Len(t, lines, 1)
		assert.Equal(t, "SPEAKER_00", lines[0].Speaker)
	})

	t.Run("No positive overlap keeps empty speaker", func(t *testing.T) {
		lines := AssignSpeakers([]subtitles.Line{line(20, 21)}, segments)
		require.Len(t, lines, 1)
		assert.Empty(t, lines[0].Speaker)
	})

	t.Run("No segments is a passthrough", func(t *testing.T) {
		lines := AssignSpeakers([]subtitles.Line{line(0, 1)}, nil)
		require.Len(t, lines, 1)
		assert.Empty(t, lines[0].Speaker)
	})
}

func TestClusterEmbeddings(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}

	t.Run("Distinct directions become distinct speakers", func(t *testing.T) {
		segments, err := ClusterEmbeddings([]EmbeddedWindow{
			{Start: 0, End: 1, Embedding: a},
			{Start: 1, End: 2, Embedding: b},
			{Start: 2, End: 3, Embedding: a},
		}, 0)
		require.NoError(t, err)
		require.Len(t, segments, 3)
		assert.Equal(t, "SPEAKER_00", segments[0].Speaker)
		assert.Equal(t, "SPEAKER_01", segments[1].Speaker)
		assert.Equal(t, "SPEAKER_00", segments[2].Speaker)
	})

	t.Run("Adjacent same-speaker windows merge", func(t *testing.T) {
		segments, err := ClusterEmbeddings([]EmbeddedWindow{
			{Start: 0, End: 1, Embedding: a},
			{Start: 1.05, End: 2, Embedding: a},
		}, 0)
		require.NoError(t, err)
		require.Len(t, segments, 1)
		assert.Equal(t, 0.0, segments[0].Start)
		assert.Equal(t, 2.0, segments[0].End)
	})

	t.Run("Short segments are dropped", func(t *testing.T) {
		segments, err := ClusterEmbeddings([]EmbeddedWindow{
			{Start: 0, End: 0.2, Embedding: a},
			{Start: 5, End: 8, Embedding: b},
		}, 1.0)
		require.NoError(t, err)
		require.Len(t, segments, 1)
		assert.Equal(t, "SPEAKER_01", segments[0].Speaker)
	})

	t.Run("Zero embedding errors", func(t *testing.T) {
		_, err := ClusterEmbeddings([]EmbeddedWindow{{Start: 0, End: 1, Embedding: []float64{0, 0}}}, 0)
		assert.Error(t, err)
	})
}
