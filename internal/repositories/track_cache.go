package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

// TrackCacheAdapter implements tasks.TrackMirrorer using TrackRepository.
//
// Duplicate tracks are silently ignored (UNIQUE constraint violations).
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// CacheTrack mirrors a catalog track.
// Returns nil if the track already exists; only actual failures are reported.
func (a *TrackCacheAdapter) CacheTrack(ctx context.Context, track models.CatalogTrack) error {
	if _, err := a.repo.Get(ctx, track.ID); err == nil {
		return nil
	}

	if err := a.repo.Create(ctx, track); err != nil {
		if errors.Is(err, shared.ErrRecordConflict) {
			return nil
		}
		return fmt.Errorf("failed to cache track: %w", err)
	}
	return nil
}
