package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateAsset registers a media asset and returns it with generated fields.
func (s *Store) CreateAsset(ctx context.Context, asset MediaAsset) (MediaAsset, error) {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	ts := now()
	asset.CreatedAt = ts
	asset.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO media_assets (id, kind, uri, mime_type, duration_seconds, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.Kind, asset.URI, asset.MimeType, asset.DurationSeconds, asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		return MediaAsset{}, fmt.Errorf("failed to insert asset: %w", err)
	}
	return asset, nil
}

// GetAsset fetches one asset or ErrNotFound.
func (s *Store) GetAsset(ctx context.Context, id string) (MediaAsset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, uri, mime_type, duration_seconds, created_at, updated_at
		 FROM media_assets WHERE id = ?`, id)
	return scanAsset(row)
}

// ListAssets returns assets newest first, optionally filtered by kind.
func (s *Store) ListAssets(ctx context.Context, kind string) ([]MediaAsset, error) {
	query := `SELECT id, kind, uri, mime_type, duration_seconds, created_at, updated_at
		 FROM media_assets ORDER BY created_at DESC, id DESC`
	args := []any{}
	if kind != "" {
		query = `SELECT id, kind, uri, mime_type, duration_seconds, created_at, updated_at
		 FROM media_assets WHERE kind = ? ORDER BY created_at DESC, id DESC`
		args = append(args, kind)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()
	assets := []MediaAsset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// UpdateAssetDuration records a probed duration on an existing asset.
func (s *Store) UpdateAssetDuration(ctx context.Context, id string, seconds float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE media_assets SET duration_seconds = ?, updated_at = ? WHERE id = ?`,
		seconds, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAsset removes an asset unless a job still references it, in which
// case ErrConflict is returned.
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	referenced, err := s.AssetReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("asset %s is referenced by a job: %w", id, ErrConflict)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM media_assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssetReferenced reports whether any job points at the asset through its
// input, its output, or a clip entry in its payload.
func (s *Store) AssetReferenced(ctx context.Context, id string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE input_asset_id = ? OR output_asset_id = ?`, id, id)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count references: %w", err)
	}
	if count > 0 {
		return true, nil
	}
	// Shorts jobs track produced clips under payload.clip_assets.
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM jobs WHERE payload LIKE '%clip_assets%'`)
	if err != nil {
		return false, fmt.Errorf("failed to scan payloads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return false, err
		}
		payload, err := unmarshalJSON(raw)
		if err != nil {
			continue
		}
		if payloadReferencesAsset(payload, id) {
			return true, nil
		}
	}
	return false, rows.Err()
}

func payloadReferencesAsset(payload map[string]any, assetID string) bool {
	clips, ok := payload["clip_assets"].([]any)
	if !ok {
		return false
	}
	for _, entry := range clips {
		clip, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"asset_id", "thumbnail_asset_id", "subtitle_asset_id"} {
			if clip[key] == assetID {
				return true
			}
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (MediaAsset, error) {
	var asset MediaAsset
	var duration sql.NullFloat64
	err := row.Scan(&asset.ID, &asset.Kind, &asset.URI, &asset.MimeType,
		&duration, &asset.CreatedAt, &asset.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaAsset{}, ErrNotFound
	}
	if err != nil {
		return MediaAsset{}, fmt.Errorf("failed to scan asset: %w", err)
	}
	if duration.Valid {
		asset.DurationSeconds = &duration.Float64
	}
	return asset, nil
}
