package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var seedStylePresets = []SubtitleStylePreset{
	{
		Name:        "clean",
		Description: "White text with a thin black outline, bottom centered",
		Style: map[string]any{
			"font_name":     "Arial",
			"font_size":     42,
			"primary_color": "#FFFFFF",
			"outline_color": "#000000",
			"outline":       2,
			"shadow":        0,
			"bold":          false,
			"position":      "bottom",
		},
	},
	{
		Name:        "bold-yellow",
		Description: "Large bold yellow captions in the lower third",
		Style: map[string]any{
			"font_name":     "Arial Black",
			"font_size":     54,
			"primary_color": "#FFD700",
			"outline_color": "#000000",
			"outline":       3,
			"shadow":        1,
			"bold":          true,
			"position":      "bottom",
		},
	},
	{
		Name:        "karaoke-pop",
		Description: "Centered karaoke highlight with per-word timing",
		Style: map[string]any{
			"font_name":       "Verdana",
			"font_size":       48,
			"primary_color":   "#FFFFFF",
			"secondary_color": "#FFD700",
			"outline_color":   "#1E1E1E",
			"outline":         2,
			"shadow":          0,
			"bold":            true,
			"position":        "middle",
		},
	},
}

// seedPresets inserts the built-in style presets, keeping any existing rows.
func (s *Store) seedPresets(ctx context.Context) error {
	for _, preset := range seedStylePresets {
		style, err := marshalJSON(preset.Style)
		if err != nil {
			return err
		}
		ts := now()
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO subtitle_style_presets (id, name, description, style, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO NOTHING`,
			uuid.NewString(), preset.Name, preset.Description, style, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to seed preset %s: %w", preset.Name, err)
		}
	}
	return nil
}

// ListPresets returns all style presets ordered by name.
func (s *Store) ListPresets(ctx context.Context) ([]SubtitleStylePreset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, style, created_at, updated_at
		 FROM subtitle_style_presets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()
	presets := []SubtitleStylePreset{}
	for rows.Next() {
		preset, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, preset)
	}
	return presets, rows.Err()
}

// GetPresetByName fetches a preset or ErrNotFound.
func (s *Store) GetPresetByName(ctx context.Context, name string) (SubtitleStylePreset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, style, created_at, updated_at
		 FROM subtitle_style_presets WHERE name = ?`, name)
	return scanPreset(row)
}

func scanPreset(row rowScanner) (SubtitleStylePreset, error) {
	var preset SubtitleStylePreset
	var style string
	err := row.Scan(&preset.ID, &preset.Name, &preset.Description, &style,
		&preset.CreatedAt, &preset.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SubtitleStylePreset{}, ErrNotFound
	}
	if err != nil {
		return SubtitleStylePreset{}, fmt.Errorf("failed to scan preset: %w", err)
	}
	if preset.Style, err = unmarshalJSON(style); err != nil {
		return SubtitleStylePreset{}, err
	}
	return preset, nil
}
