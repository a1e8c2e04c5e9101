// Package cleanup sweeps expired scratch files left behind by pipelines.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reframe/internal/store"
)

// tempPrefix marks scratch files the pipelines create.
const tempPrefix = "reframe-"

// Sweeper removes expired temp files and unreferenced media files.
type Sweeper struct {
	store     *store.Store
	mediaRoot string
	ttl       time.Duration
}

// New builds a sweeper over the media root.
func New(st *store.Store, mediaRoot string, ttl time.Duration) *Sweeper {
	return &Sweeper{store: st, mediaRoot: mediaRoot, ttl: ttl}
}

// Run executes one sweep. Everything here is best effort; failures are
// logged and skipped.
func (s *Sweeper) Run(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	removedTemp := s.sweepTempDir(cutoff)
	removedMedia := s.sweepMediaRoot(ctx, cutoff)
	slog.Info("Cleanup sweep finished", "removed_temp", removedTemp, "removed_media", removedMedia)
}

// sweepTempDir removes expired scratch files from the OS temp dir.
func (s *Sweeper) sweepTempDir(cutoff time.Time) int {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		slog.Warn("Failed to read temp dir", "error", err)
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(os.TempDir(), entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to remove temp file", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// sweepMediaRoot removes expired media files no asset row points at.
func (s *Sweeper) sweepMediaRoot(ctx context.Context, cutoff time.Time) int {
	referenced, err := s.referencedFiles(ctx)
	if err != nil {
		slog.Warn("Failed to load asset references, skipping media sweep", "error", err)
		return 0
	}
	removed := 0
	filepath.WalkDir(s.mediaRoot, func(path string, entry os.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.mediaRoot, path)
		if err != nil || referenced[filepath.ToSlash(rel)] {
			return nil
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			slog.Warn("Failed to remove media file", "path", path, "error", err)
			return nil
		}
		removed++
		return nil
	})
	return removed
}

// referencedFiles maps media-root-relative paths of every asset URI.
func (s *Sweeper) referencedFiles(ctx context.Context) (map[string]bool, error) {
	assets, err := s.store.ListAssets(ctx, "")
	if err != nil {
		return nil, err
	}
	referenced := map[string]bool{}
	for _, asset := range assets {
		uri := strings.TrimPrefix(asset.URI, "/media/")
		referenced[strings.TrimPrefix(uri, "/")] = true
	}
	return referenced, nil
}
