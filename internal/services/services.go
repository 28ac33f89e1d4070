package services

import (
	"context"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"golang.org/x/oauth2"
)

// CredentialStore is the persistence the [CredentialManager] reads and conditionally updates.
// Implemented by repositories.CredentialRepository.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (*models.Credential, error)
	UpdateRefreshed(ctx context.Context, userID, previousRefresh, accessToken, refreshToken string, expiresAt time.Time) error
}

// TokenRefresher performs refresh-token exchanges. Implemented by [CatalogService].
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenProvider hands out an access token that is safe to use right now.
type TokenProvider interface {
	UsableCredential(ctx context.Context, userID string) (string, error)
}

// Catalog is the subset of [CatalogService] used for per-user lookups.
type Catalog interface {
	Track(ctx context.Context, accessToken, trackID string) (*models.CatalogTrack, error)
	SeveralTracks(ctx context.Context, accessToken string, trackIDs []string) ([]models.CatalogTrack, error)
	SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*SavedTracksPage, error)
}
