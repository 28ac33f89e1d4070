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

// CredentialRepository stores one [models.Credential] per user.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get returns the stored credential for userID or [shared.ErrNoCredential].
func (r *CredentialRepository) Get(ctx context.Context, userID string) (*models.Credential, error) {
	query := `
		SELECT user_id, display_name, access_token, refresh_token, expires_at, updated_at
		FROM credentials
		WHERE user_id = ?
	`

	var c models.Credential
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&c.UserID, &c.DisplayName, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNoCredential, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return &c, nil
}

// Save inserts or replaces the credential obtained from an authorization code exchange.
func (r *CredentialRepository) Save(ctx context.Context, c *models.Credential) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO credentials (user_id, display_name, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		c.UserID, c.DisplayName, c.AccessToken, c.RefreshToken, c.ExpiresAt.UTC(), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	c.UpdatedAt = now
	return nil
}

// UpdateRefreshed persists the result of a refresh exchange in a single statement.
//
// The update only applies while the stored refresh token still equals previousRefresh.
// When another writer rotated it first, nothing is written and [shared.ErrRecordConflict] is returned.
func (r *CredentialRepository) UpdateRefreshed(ctx context.Context, userID, previousRefresh, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE credentials
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE user_id = ? AND refresh_token = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		accessToken, refreshToken, expiresAt.UTC(), time.Now().UTC(), userID, previousRefresh,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: credential for %s changed concurrently", shared.ErrRecordConflict, userID)
	}
	return nil
}
