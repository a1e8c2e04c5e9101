// Package storage persists media bytes under URIs and resolves them back to
// local paths when possible.
package storage

import (
	"context"
	"strings"
)

// Backend is the capability set the API and worker need from a store.
type Backend interface {
	// WriteBytes durably stores data and returns a client-facing URI.
	WriteBytes(ctx context.Context, relDir, filename string, data []byte, mimeType string) (string, error)
	// WriteFile durably stores the file at sourcePath and returns a URI.
	WriteFile(ctx context.Context, relDir, filename, sourcePath, mimeType string) (string, error)
	// ResolveLocalPath maps a non-remote URI onto the local filesystem.
	ResolveLocalPath(uri string) (string, error)
	// DownloadURL returns a URI clients can fetch, presigning when needed.
	DownloadURL(ctx context.Context, uri string) (string, error)
	// Name identifies the backend kind ("local", "s3", "r2").
	Name() string
}

// IsRemoteURI reports whether a URI points outside the local media root.
func IsRemoteURI(uri string) bool {
	lowered := strings.ToLower(strings.TrimSpace(uri))
	for _, prefix := range []string{"http://", "https://", "s3://", "gs://"} {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}
