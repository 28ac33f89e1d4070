package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/stash/internal/models"
)

// UserCatalog performs catalog lookups on behalf of a user, obtaining a usable token
// for every call and consulting the track cache first.
type UserCatalog struct {
	tokens  TokenProvider
	catalog Catalog
	cache   *TrackCache
}

// NewUserCatalog creates a UserCatalog. cache may be nil.
func NewUserCatalog(tokens TokenProvider, catalog Catalog, cache *TrackCache) *UserCatalog {
	return &UserCatalog{tokens: tokens, catalog: catalog, cache: cache}
}

// Track returns metadata for a single catalog track.
func (u *UserCatalog) Track(ctx context.Context, userID, trackID string) (*models.CatalogTrack, error) {
	if track, ok := u.cache.Get(ctx, trackID); ok {
		return track, nil
	}

	token, err := u.tokens.UsableCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	track, err := u.catalog.Track(ctx, token, trackID)
	if err != nil {
		return nil, err
	}

	u.cache.Set(ctx, *track)
	return track, nil
}

// Tracks returns metadata for ids keyed by id, fetching cache misses in batches of [MaxTracksPerRequest].
// Ids the catalog does not know are absent from the result.
func (u *UserCatalog) Tracks(ctx context.Context, userID string, ids []string) (map[string]models.CatalogTrack, error) {
	found := make(map[string]models.CatalogTrack, len(ids))

	var missing []string
	for _, id := range ids {
		if track, ok := u.cache.Get(ctx, id); ok {
			found[id] = *track
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return found, nil
	}

	token, err := u.tokens.UsableCredential(ctx, userID)
	if err != nil {
		return found, err
	}

	for start := 0; start < len(missing); start += MaxTracksPerRequest {
		end := min(start+MaxTracksPerRequest, len(missing))

		tracks, err := u.catalog.SeveralTracks(ctx, token, missing[start:end])
		if err != nil {
			return found, fmt.Errorf("failed to fetch tracks %d-%d: %w", start, end, err)
		}

		for _, t := range tracks {
			found[t.ID] = t
			u.cache.Set(ctx, t)
		}
	}
	return found, nil
}

// SavedTracks pages through the user's saved tracks, stopping after limit tracks when limit > 0.
func (u *UserCatalog) SavedTracks(ctx context.Context, userID string, limit int) ([]models.CatalogTrack, error) {
	token, err := u.tokens.UsableCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	var tracks []models.CatalogTrack
	for offset := 0; ; offset += MaxTracksPerRequest {
		page, err := u.catalog.SavedTracks(ctx, token, MaxTracksPerRequest, offset)
		if err != nil {
			return tracks, err
		}

		tracks = append(tracks, page.Tracks...)
		if limit > 0 && len(tracks) >= limit {
			return tracks[:limit], nil
		}
		if !page.HasNext || len(page.Tracks) == 0 {
			return tracks, nil
		}
	}
}
