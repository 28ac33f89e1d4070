package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/server"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authorizeTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization flow for Spotify.
//
// Starts a local HTTP server on the redirect URI, opens the browser for user authorization,
// exchanges the code for tokens and stores the credential. The authorized user becomes the
// default user in the config file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	token, err := r.doOAuth(ctx, d.catalog)
	if err != nil {
		return err
	}

	profile, err := d.catalog.UserProfile(ctx, token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	cred, err := r.saveAuthorization(ctx, d.credentials, token, profile)
	if err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Signed in as %s (%s)\n", cred.DisplayName, cred.UserID)
	if r.configPath != "" {
		r.writePlain("✓ Default user saved to %s\n\n", r.configPath)
	}
	r.writePlain("You can now use: stash acquire <track-id>\n")
	return nil
}

// saveAuthorization stores the credential for profile and records the user in the config.
func (r *Runner) saveAuthorization(ctx context.Context, store server.CredentialSaver, token *oauth2.Token, profile *models.Profile) (*models.Credential, error) {
	if token == nil || profile == nil {
		return nil, fmt.Errorf("%w: token and profile are required", shared.ErrAuthFailed)
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}

	cred := &models.Credential{
		UserID:       profile.ID,
		DisplayName:  profile.DisplayName,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	if err := store.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	if r.config == nil {
		return nil, fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}
	r.config.User.ID = profile.ID

	if r.configPath == "" {
		return cred, nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}
	return cred, nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, catalog *services.CatalogService) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	addr, path, err := callbackAddr(r.config.Credentials.Spotify.RedirectURI, r.config.Server.Addr())
	if err != nil {
		return nil, err
	}

	oauthHandler := server.NewOAuthHandler(catalog, state, path)
	router := chi.NewRouter()
	server.Mount(router, oauthHandler, server.RequestLogger(r.logger))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := catalog.AuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authorizeTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

// callbackAddr returns the listen address and path of the redirect URI. The fallback address is
// used when the URI has no host.
func callbackAddr(redirectURI, fallback string) (string, string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	addr := u.Host
	if addr == "" {
		addr = fallback
	}

	path := u.Path
	if path == "" {
		path = "/auth/callback"
	}
	return addr, path, nil
}

// AuthToken prints an access token for the user, refreshing it first when stale.
func (r *Runner) AuthToken(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.userID(cmd)
	if err != nil {
		return err
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	token, err := d.tokens.UsableCredential(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNoCredential) {
			r.writePlain("⚠ No credential stored for %s. Run 'stash auth login'.\n", userID)
		}
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]string{"userId": userID, "accessToken": token}, false)
	}
	return r.writePlain("%s\n", token)
}

// AuthStatus shows the stored credential for the user without refreshing it.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.userID(cmd)
	if err != nil {
		return err
	}

	d, err := r.openStore()
	if err != nil {
		return err
	}
	defer d.close()

	cred, err := d.credentials.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNoCredential) {
			return r.writePlain("✗ Not authorized: %s\nRun 'stash auth login' to authorize.\n", userID)
		}
		return err
	}

	r.writePlain("✓ Authorized\n")
	r.writePlain("User: %s (%s)\n", cred.DisplayName, cred.UserID)
	r.writePlain("Expires: %s\n", cred.ExpiresAt.Local().Format(time.RFC1123))
	if cred.Stale(time.Now(), services.RefreshMargin) {
		r.writePlain("Access token: stale, refreshed on next use\n")
	} else {
		r.writePlain("Access token: valid\n")
	}
	return nil
}
