package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

const acquisitionColumns = `id, sequence, user_id, track_ref, title, artist, album, cover_url, storage_key, duration_ms, created_at`

// AcquisitionRepository persists [models.AcquisitionRecord] rows.
type AcquisitionRepository struct {
	db *sql.DB
}

// NewAcquisitionRepository creates a new AcquisitionRepository with the given database connection
func NewAcquisitionRepository(db *sql.DB) *AcquisitionRepository {
	return &AcquisitionRepository{db: db}
}

// Get returns the record for (userID, trackRef) or [shared.ErrRecordNotFound].
func (r *AcquisitionRepository) Get(ctx context.Context, userID, trackRef string) (*models.AcquisitionRecord, error) {
	query := `SELECT ` + acquisitionColumns + ` FROM acquisitions WHERE user_id = ? AND track_ref = ?`

	rec, err := scanAcquisition(r.db.QueryRowContext(ctx, query, userID, trackRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: acquisition %s/%s", shared.ErrRecordNotFound, userID, trackRef)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan acquisition: %w", err)
	}
	return rec, nil
}

// Create inserts rec, assigning its ID, sequence and creation time.
//
// A second record for the same (user, track) fails with [shared.ErrRecordConflict].
func (r *AcquisitionRepository) Create(ctx context.Context, rec *models.AcquisitionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(ctx, tx, "acquisitions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	createdAt := time.Now().UTC()

	query := `INSERT INTO acquisitions (` + acquisitionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		id, sequence, rec.UserID, rec.TrackRef, rec.Title, rec.Artist, rec.Album,
		rec.CoverURL, rec.StorageKey, rec.DurationMs, createdAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: acquisition %s/%s already exists", shared.ErrRecordConflict, rec.UserID, rec.TrackRef)
	}
	if err != nil {
		return fmt.Errorf("failed to insert acquisition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: acquisition %s/%s already exists", shared.ErrRecordConflict, rec.UserID, rec.TrackRef)
		}
		return fmt.Errorf("failed to commit acquisition: %w", err)
	}

	rec.ID, rec.Sequence, rec.CreatedAt = id, sequence, createdAt
	return nil
}

// ListByUser returns the user's acquisitions, most recent first.
func (r *AcquisitionRepository) ListByUser(ctx context.Context, userID string) ([]*models.AcquisitionRecord, error) {
	query := `SELECT ` + acquisitionColumns + ` FROM acquisitions WHERE user_id = ? ORDER BY sequence DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query acquisitions: %w", err)
	}
	defer rows.Close()

	var records []*models.AcquisitionRecord
	for rows.Next() {
		rec, err := scanAcquisition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan acquisition: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAcquisition(s scanner) (*models.AcquisitionRecord, error) {
	var rec models.AcquisitionRecord
	err := s.Scan(
		&rec.ID, &rec.Sequence, &rec.UserID, &rec.TrackRef, &rec.Title, &rec.Artist, &rec.Album,
		&rec.CoverURL, &rec.StorageKey, &rec.DurationMs, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
