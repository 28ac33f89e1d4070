// Package services implements the clients for the external systems stash depends on.
//
// # Catalog
//
// [CatalogService] is a read-only Spotify Web API client. It is stateless with respect to tokens:
// each call takes the bearer token to use, which keeps one instance safe to share across users.
// It also drives the OAuth2 authorization code and refresh-token exchanges via [oauth2.Config].
//
// # Credentials
//
// [CredentialManager] returns a usable access token per user, refreshing through the catalog when
// the stored one expires within [RefreshMargin]. Refreshes for the same user are collapsed with
// [singleflight.Group]; the store's conditional update covers other processes.
//
// [UserCatalog] combines the manager, the catalog and the optional redis [TrackCache].
//
// # Conversion
//
// [ConverterService] calls the conversion provider behind a [rate.Limiter] and downloads the
// resulting audio.
//
// # Error Handling
//
// Services wrap typed errors from the shared package:
//   - [shared.ErrNotAuthenticated] : missing or rejected bearer token
//   - [shared.ErrRefreshFailed] : refresh exchange failed, stored credential untouched
//   - [shared.ErrTrackNotFound] : catalog returned 404
//   - [shared.ErrAPIRequest] : other catalog failures
//   - [shared.ErrProviderUnavailable], [shared.ErrProviderNoResult] : conversion failed
//   - [shared.ErrTransferFailed] : audio download failed
package services
