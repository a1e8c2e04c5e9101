package ffmpeg

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner replays canned output keyed by the binary name.
type fakeRunner struct {
	stdout map[string][]byte
	stderr map[string][]byte
	err    map[string]error
	calls  [][]string
}

func (f *fakeRunner) Run(_ context.Context, argv []string) ([]byte, []byte, error) {
	f.calls = append(f.calls, argv)
	bin := argv[0]
	return f.stdout[bin], f.stderr[bin], f.err[bin]
}

func TestProbeMedia(t *testing.T) {
	runner := &fakeRunner{stdout: map[string][]byte{
		"ffprobe": []byte(`{
			"format": {"duration": "120.5", "bit_rate": "128000"},
			"streams": [
				{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080},
				{"codec_type": "audio", "codec_name": "aac"}
			]
		}`),
	}}
	info, err := ProbeMedia(context.Background(), runner, "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, 120.5, info.Duration)
	assert.Equal(t, int64(128000), info.Bitrate)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, 1920, info.VideoWidth)
	assert.True(t, info.HasAudio())

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "ffprobe", runner.calls[0][0])
}

func TestCutClipArgs(t *testing.T) {
	argv := CutClipArgs("in.mp4", 10, 40, "out.mp4")
	joined := strings.Join(argv, " ")
	assert.Contains(t, joined, "-ss 10")
	assert.Contains(t, joined, "-t 30")
	assert.Contains(t, joined, "-c copy")
	assert.Equal(t, "out.mp4", argv[len(argv)-1])

	// inverted span clamps duration at zero
	argv = CutClipArgs("in.mp4", 40, 10, "out.mp4")
	assert.Contains(t, strings.Join(argv, " "), "-t 0")
}

func TestMergeVideoAudioArgs(t *testing.T) {
	t.Run("Container has audio mixes both tracks", func(t *testing.T) {
		argv := MergeVideoAudioArgs("v.mp4", "a.mp3", "out.mp4", MergeOptions{VideoHasAudio: true})
		joined := strings.Join(argv, " ")
		assert.Contains(t, joined, "amix=inputs=2:duration=first")
		assert.Contains(t, joined, "-map [aout]")
		assert.Contains(t, joined, "-shortest")
	})

	t.Run("Ducking lowers the external track", func(t *testing.T) {
		argv := MergeVideoAudioArgs("v.mp4", "a.mp3", "out.mp4", MergeOptions{VideoHasAudio: true, Ducking: 0.25})
		joined := strings.Join(argv, " ")
		assert.Contains(t, joined, "[1:a]volume=0.25[ducked]")
		assert.Contains(t, joined, "[ducked]amix")
	})

	t.Run("No container audio maps the external track", func(t *testing.T) {
		argv := MergeVideoAudioArgs("v.mp4", "a.mp3", "out.mp4", MergeOptions{})
		joined := strings.Join(argv, " ")
		assert.NotContains(t, joined, "amix")
		assert.Contains(t, joined, "-map 1:a")
	})

	t.Run("Normalize without container audio", func(t *testing.T) {
		argv := MergeVideoAudioArgs("v.mp4", "a.mp3", "out.mp4", MergeOptions{Normalize: true})
		joined := strings.Join(argv, " ")
		assert.Contains(t, joined, "loudnorm[aout]")
	})

	t.Run("Offset is forwarded", func(t *testing.T) {
		argv := MergeVideoAudioArgs("v.mp4", "a.mp3", "out.mp4", MergeOptions{Offset: 1.5})
		assert.Contains(t, strings.Join(argv, " "), "-itsoffset 1.5")
	})
}

func TestBurnSubtitlesArgs(t *testing.T) {
	argv := BurnSubtitlesArgs("v.mp4", "subs.ass", "out.mp4", []string{"scale=1080:-2"})
	joined := strings.Join(argv, " ")
	assert.Contains(t, joined, "-vf subtitles=subs.ass,scale=1080:-2")
}

func TestParseSilence(t *testing.T) {
	stderr := `
[silencedetect @ 0x1] silence_start: 1.5
[silencedetect @ 0x1] silence_end: 3.25 | silence_duration: 1.75
[silencedetect @ 0x1] silence_start: 10
`
	intervals, open := ParseSilence(stderr)
	require.Len(t, intervals, 1)
	assert.Equal(t, 1.5, intervals[0].Start)
	assert.Equal(t, 3.25, intervals[0].End)
	require.NotNil(t, open)
	assert.Equal(t, 10.0, *open)
}

func TestDetectSilenceClosesTrailingInterval(t *testing.T) {
	runner := &fakeRunner{
		stderr: map[string][]byte{
			"ffmpeg": []byte("silence_start: 50\n"),
		},
		stdout: map[string][]byte{
			"ffprobe": []byte(`{"format": {"duration": "60.0"}}`),
		},
	}
	intervals, err := DetectSilence(context.Background(), runner, "in.mp4")
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, 50.0, intervals[0].Start)
	assert.Equal(t, 60.0, intervals[0].End)
}

func TestCoverage(t *testing.T) {
	intervals := []SilenceInterval{{Start: 0, End: 5}, {Start: 10, End: 15}}
	assert.Equal(t, 0.5, Coverage(intervals, 0, 20))
	assert.Equal(t, 1.0, Coverage(intervals, 1, 4))
	assert.Equal(t, 0.0, Coverage(intervals, 6, 9))
	assert.Equal(t, 0.0, Coverage(intervals, 5, 5))
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 1}
	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
}

func TestRetry(t *testing.T) {
	t.Run("Succeeds after failures", func(t *testing.T) {
		attempts := 0
		var retries []int
		err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelaySeconds: 0}, "probe",
			func(attempt int) { retries = append(retries, attempt) },
			func() error {
				attempts++
				if attempts < 3 {
					return fmt.Errorf("boom")
				}
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, []int{2, 3}, retries)
	})

	t.Run("Exhausted attempts wrap the last error", func(t *testing.T) {
		err := Retry(context.Background(), RetryPolicy{MaxAttempts: 2, BaseDelaySeconds: 0}, "cut", nil,
			func() error { return fmt.Errorf("boom") })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cut failed after 2 attempts")
	})
}
