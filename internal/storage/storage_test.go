package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemoteURI(t *testing.T) {
	assert.True(t, IsRemoteURI("https://example.com/a.mp4"))
	assert.True(t, IsRemoteURI("HTTP://example.com/a.mp4"))
	assert.True(t, IsRemoteURI("s3://bucket/key.mp4"))
	assert.True(t, IsRemoteURI(" gs://bucket/key "))
	assert.False(t, IsRemoteURI("/media/uploads/a.mp4"))
	assert.False(t, IsRemoteURI("uploads/a.mp4"))
	assert.False(t, IsRemoteURI(""))
}

func TestLocalBackend(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	backend, err := NewLocalBackend(root)
	require.NoError(t, err)
	assert.Equal(t, "local", backend.Name())

	t.Run("WriteBytes returns a media URI", func(t *testing.T) {
		uri, err := backend.WriteBytes(ctx, "tmp", "a.srt", []byte("content"), "application/x-subrip")
		require.NoError(t, err)
		assert.Equal(t, "/media/tmp/a.srt", uri)

		data, err := os.ReadFile(filepath.Join(root, "tmp", "a.srt"))
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
	})

	t.Run("WriteFile copies into the media root", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "clip.mp4")
		require.NoError(t, os.WriteFile(src, []byte("video"), 0o644))

		uri, err := backend.WriteFile(ctx, "tmp", "clip.mp4", src, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, "/media/tmp/clip.mp4", uri)

		data, err := os.ReadFile(filepath.Join(root, "tmp", "clip.mp4"))
		require.NoError(t, err)
		assert.Equal(t, "video", string(data))
	})

	t.Run("ResolveLocalPath maps media URIs", func(t *testing.T) {
		path, err := backend.ResolveLocalPath("/media/tmp/a.srt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "tmp", "a.srt"), path)

		path, err = backend.ResolveLocalPath("tmp/a.srt")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "tmp", "a.srt"), path)
	})

	t.Run("ResolveLocalPath rejects remote URIs", func(t *testing.T) {
		_, err := backend.ResolveLocalPath("https://example.com/a.srt")
		assert.Error(t, err)
	})

	t.Run("DownloadURL is the identity", func(t *testing.T) {
		url, err := backend.DownloadURL(ctx, "/media/tmp/a.srt")
		require.NoError(t, err)
		assert.Equal(t, "/media/tmp/a.srt", url)
	})
}
