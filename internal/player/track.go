package player

import (
	"github.com/desertthunder/stash/internal/models"
)

// TrackDescriptor is everything the player needs to show and play a track.
type TrackDescriptor struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	CoverURL        string  `json:"cover_url"`
	PlayableURL     string  `json:"playable_url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// FromRecord describes an acquired track. publicURL maps its storage key to a playable URL.
func FromRecord(rec *models.AcquisitionRecord, publicURL func(key string) string) TrackDescriptor {
	d := TrackDescriptor{
		ID:              rec.TrackRef,
		Title:           rec.Title,
		Artist:          rec.Artist,
		CoverURL:        rec.CoverURL,
		PlayableURL:     rec.StorageKey,
		DurationSeconds: float64(rec.DurationMs) / 1000,
	}
	if publicURL != nil {
		d.PlayableURL = publicURL(rec.StorageKey)
	}
	return d
}

// FromCatalog describes a catalog track's preview clip. PlayableURL is empty when the
// catalog offers no preview.
func FromCatalog(track models.CatalogTrack) TrackDescriptor {
	return TrackDescriptor{
		ID:              track.ID,
		Title:           track.Title,
		Artist:          track.Artist(),
		CoverURL:        track.CoverURL,
		PlayableURL:     track.PreviewURL,
		DurationSeconds: float64(track.DurationMs) / 1000,
	}
}

// FromRecords describes a whole library in order.
func FromRecords(recs []*models.AcquisitionRecord, publicURL func(key string) string) []TrackDescriptor {
	out := make([]TrackDescriptor, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromRecord(rec, publicURL))
	}
	return out
}
