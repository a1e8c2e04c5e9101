package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const localPublicPrefix = "/media"

// LocalBackend stores files under a media root and serves them through the
// /media static mount.
type LocalBackend struct {
	MediaRoot string
}

// NewLocalBackend ensures the media root exists.
func NewLocalBackend(mediaRoot string) (*LocalBackend, error) {
	if err := os.MkdirAll(mediaRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}
	return &LocalBackend{MediaRoot: mediaRoot}, nil
}

func (l *LocalBackend) Name() string { return "local" }

func (l *LocalBackend) WriteBytes(_ context.Context, relDir, filename string, data []byte, _ string) (string, error) {
	relDir = strings.Trim(relDir, "/")
	targetDir := l.MediaRoot
	if relDir != "" {
		targetDir = filepath.Join(l.MediaRoot, relDir)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create target dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(targetDir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return l.uriFor(relDir, filename), nil
}

func (l *LocalBackend) WriteFile(ctx context.Context, relDir, filename, sourcePath, mimeType string) (string, error) {
	relDir = strings.Trim(relDir, "/")
	targetDir := l.MediaRoot
	if relDir != "" {
		targetDir = filepath.Join(l.MediaRoot, relDir)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create target dir: %w", err)
	}
	targetPath := filepath.Join(targetDir, filename)
	if sameFile(sourcePath, targetPath) {
		return l.uriFor(relDir, filename), nil
	}
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()
	dst, err := os.Create(targetPath)
	if err != nil {
		return "", fmt.Errorf("failed to create target file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to copy into media root: %w", err)
	}
	return l.uriFor(relDir, filename), nil
}

// ResolveLocalPath maps a "/media/..." (or bare relative) URI onto the media
// root. Remote URIs are rejected.
func (l *LocalBackend) ResolveLocalPath(uri string) (string, error) {
	if IsRemoteURI(uri) {
		return "", fmt.Errorf("cannot resolve remote uri: %s", uri)
	}
	trimmed := strings.TrimPrefix(strings.TrimSpace(uri), "/")
	prefix := strings.TrimPrefix(localPublicPrefix, "/")
	if trimmed == prefix {
		trimmed = ""
	} else if strings.HasPrefix(trimmed, prefix+"/") {
		trimmed = strings.TrimPrefix(trimmed, prefix+"/")
	}
	return filepath.Join(l.MediaRoot, filepath.FromSlash(trimmed)), nil
}

func (l *LocalBackend) DownloadURL(_ context.Context, uri string) (string, error) {
	return uri, nil
}

func (l *LocalBackend) uriFor(relDir, filename string) string {
	if relDir == "" {
		return localPublicPrefix + "/" + filename
	}
	return localPublicPrefix + "/" + relDir + "/" + filename
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
