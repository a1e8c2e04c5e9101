package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordValidate(t *testing.T) {
	assert.NoError(t, Word{Text: "hi", Start: 0, End: 0.5}.Validate())
	assert.Error(t, Word{Text: "hi", Start: -0.1, End: 0.5}.Validate())
	assert.Error(t, Word{Text: "hi", Start: 1, End: 1}.Validate())
	assert.Error(t, Word{Text: "hi", Start: 1, End: 0.5}.Validate())

	bad := 1.5
	assert.Error(t, Word{Text: "hi", Start: 0, End: 1, Probability: &bad}.Validate())
	ok := 0.9
	assert.NoError(t, Word{Text: "hi", Start: 0, End: 1, Probability: &ok}.Validate())
}

func TestNewResult(t *testing.T) {
	t.Run("Sorts words by start", func(t *testing.T) {
		result, err := NewResult([]Word{
			{Text: "b", Start: 1, End: 2},
			{Text: "a", Start: 0, End: 0.5},
		}, "a b", "base", "en")
		require.NoError(t, err)
		assert.Equal(t, "a", result.Words[0].Text)
		assert.Equal(t, "b", result.Words[1].Text)
	})

	t.Run("Rejects overlapping words", func(t *testing.T) {
		_, err := NewResult([]Word{
			{Text: "a", Start: 0, End: 1},
			{Text: "b", Start: 0.5, End: 2},
		}, "", "base", "en")
		assert.Error(t, err)
	})
}

func TestParseBackend(t *testing.T) {
	cases := map[string]Backend{
		"":              BackendNoop,
		"noop":          BackendNoop,
		"faster_whisper": BackendFasterWhisper,
		"OPENAI_WHISPER": BackendOpenAIWhisper,
		" whisper_cpp ":  BackendWhisperCPP,
	}
	for raw, want := range cases {
		got, err := ParseBackend(raw)
		assert.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseBackend("whisper")
	assert.Error(t, err)
}

func TestNormalizeModelName(t *testing.T) {
	assert.Equal(t, "large-v3", NormalizeModelName("whisper-large-v3"))
	assert.Equal(t, "large-v3", NormalizeModelName("openai/Whisper-Large-V3"))
	assert.Equal(t, "custom-model", NormalizeModelName("custom-model"))
	assert.Equal(t, "", NormalizeModelName("  "))
}

func TestNormalize(t *testing.T) {
	segments := []RawSegment{
		{
			Text: " Hello world. ",
			Words: []RawWord{
				{Word: "Hello", Start: 0.0, End: 0.5, Probability: 0.98},
				{Word: "world.", Start: "0.5", End: "1.0"},
				{Word: "broken", Start: "nope", End: 2.0},
				{Word: "inverted", Start: 3.0, End: 2.5},
			},
		},
		{Text: "Second segment."},
	}
	result := Normalize(segments, "base", "en")
	require.Len(t, result.Words, 2)
	assert.Equal(t, "Hello", result.Words[0].Text)
	require.NotNil(t, result.Words[0].Probability)
	assert.InDelta(t, 0.98, *result.Words[0].Probability, 1e-9)
	assert.Nil(t, result.Words[1].Probability)
	assert.Equal(t, "Hello world. Second segment.", result.Text)
	assert.Equal(t, "base", result.Model)
}

func TestNoop(t *testing.T) {
	result := Noop("/tmp/video.mp4", Config{Model: "base", Language: "en"})
	require.Len(t, result.Words, 1)
	assert.Equal(t, "video.mp4", result.Words[0].Text)
	assert.Equal(t, 0.0, result.Words[0].Start)
	assert.Equal(t, 1.0, result.Words[0].End)
}
