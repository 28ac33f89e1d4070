package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

const trackColumns = `id, title, artists, album, cover_url, preview_url, duration_ms, isrc`

// TrackRepository mirrors catalog track metadata into the catalog_tracks table, keyed by catalog id.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a catalog track. An existing row with the same id fails with [shared.ErrRecordConflict].
func (r *TrackRepository) Create(ctx context.Context, track models.CatalogTrack) error {
	if track.ID == "" || track.Title == "" {
		return fmt.Errorf("%w: catalog track requires id and title", shared.ErrInvalidInput)
	}

	artists, err := json.Marshal(track.Artists)
	if err != nil {
		return fmt.Errorf("failed to encode artists: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(ctx, tx, "catalog_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO catalog_tracks (` + trackColumns + `, sequence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		track.ID, track.Title, string(artists), track.Album, track.CoverURL, track.PreviewURL,
		track.DurationMs, track.ISRC, sequence, now, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: catalog track %s", shared.ErrRecordConflict, track.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert catalog track: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a mirrored track by catalog id or [shared.ErrRecordNotFound].
func (r *TrackRepository) Get(ctx context.Context, id string) (*models.CatalogTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM catalog_tracks WHERE id = ?`

	track, err := scanTrack(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: catalog track %s", shared.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog track: %w", err)
	}
	return track, nil
}

// GetMany returns the mirrored tracks among ids keyed by id. Unknown ids are omitted.
func (r *TrackRepository) GetMany(ctx context.Context, ids []string) (map[string]models.CatalogTrack, error) {
	found := make(map[string]models.CatalogTrack, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `SELECT ` + trackColumns + ` FROM catalog_tracks WHERE id IN (` + placeholders + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog track: %w", err)
		}
		found[track.ID] = *track
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return found, nil
}

// Count returns the number of mirrored tracks.
func (r *TrackRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalog_tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count catalog tracks: %w", err)
	}
	return n, nil
}

func scanTrack(s scanner) (*models.CatalogTrack, error) {
	var (
		track   models.CatalogTrack
		artists string
	)

	err := s.Scan(&track.ID, &track.Title, &artists, &track.Album, &track.CoverURL, &track.PreviewURL, &track.DurationMs, &track.ISRC)
	if err != nil {
		return nil, err
	}

	if artists != "" {
		if err := json.Unmarshal([]byte(artists), &track.Artists); err != nil {
			return nil, fmt.Errorf("failed to decode artists: %w", err)
		}
	}
	return &track, nil
}
