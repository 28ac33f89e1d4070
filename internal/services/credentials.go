package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/sync/singleflight"
)

const (
	// RefreshMargin is how long before expiry an access token is treated as stale.
	RefreshMargin = 5 * time.Minute

	// defaultTokenLifetime applies when the authorization server omits expires_in.
	defaultTokenLifetime = time.Hour

	// refreshTimeout bounds a shared refresh once it no longer follows any caller's context.
	refreshTimeout = 30 * time.Second
)

// CredentialManager keeps each user's access token usable across its expiry window.
//
// Concurrent refreshes for the same user share one exchange, run detached from the caller that
// started it. A caller whose context ends stops waiting without failing the others. The
// conditional update in the store remains the guard against other processes refreshing at the
// same time.
type CredentialManager struct {
	store     CredentialStore
	refresher TokenRefresher
	logger    *log.Logger
	margin    time.Duration
	now       func() time.Time
	flight    singleflight.Group
}

// NewCredentialManager creates a manager over store that refreshes through refresher.
func NewCredentialManager(store CredentialStore, refresher TokenRefresher, logger *log.Logger) *CredentialManager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CredentialManager{
		store:     store,
		refresher: refresher,
		logger:    logger,
		margin:    RefreshMargin,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (m *CredentialManager) SetClock(now func() time.Time) {
	m.now = now
}

// UsableCredential returns an access token for userID that does not expire within the refresh margin.
//
// Errors wrap [shared.ErrNoCredential] when the user never authorized and [shared.ErrRefreshFailed]
// when a stale token could not be renewed. A failed refresh writes nothing.
func (m *CredentialManager) UsableCredential(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	if !cred.Stale(m.now(), m.margin) {
		return cred.AccessToken, nil
	}

	results := m.flight.DoChan(userID, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(refreshCtx, userID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.logger.Debug("joined in-flight refresh", "user", userID)
		}
		return res.Val.(string), nil
	}
}

// refresh re-reads the credential so a refresh finished by an earlier flight is reused,
// then exchanges the refresh token and persists the result.
func (m *CredentialManager) refresh(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	now := m.now()
	if !cred.Stale(now, m.margin) {
		return cred.AccessToken, nil
	}

	logger := m.logger.With("user", userID)
	logger.Debug("refreshing stale credential", "expires_at", cred.ExpiresAt)

	token, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		logger.Warn("credential refresh failed", "error", err)
		if errors.Is(err, shared.ErrRefreshFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	next := nextCredential(cred, token.AccessToken, token.RefreshToken, token.Expiry, now)
	err = m.store.UpdateRefreshed(ctx, userID, cred.RefreshToken, next.AccessToken, next.RefreshToken, next.ExpiresAt)
	switch {
	case errors.Is(err, shared.ErrRecordConflict):
		logger.Warn("credential changed during refresh, keeping the stored one")
	case err != nil:
		logger.Error("failed to persist refreshed credential", "error", err)
	default:
		logger.Info("credential refreshed", "expires_at", next.ExpiresAt, "rotated", next.RefreshToken != cred.RefreshToken)
	}

	return next.AccessToken, nil
}

// nextCredential applies a refresh response to cred. The refresh token is replaced only when the
// response carried a different one.
func nextCredential(cred *models.Credential, accessToken, refreshToken string, expiry, now time.Time) models.Credential {
	next := *cred
	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	next.ExpiresAt = expiry
	if expiry.IsZero() {
		next.ExpiresAt = now.Add(defaultTokenLifetime)
	}
	return next
}
