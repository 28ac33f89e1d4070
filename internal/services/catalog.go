// Spotify Web API client used as the catalog.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// MaxTracksPerRequest is the catalog's limit for /tracks?ids=.
	MaxTracksPerRequest = 50
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       SpotifyAlbum    `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	PreviewURL  *string         `json:"preview_url"`
	ExternalIDs externalIDs     `json:"external_ids"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items  []SpotifySavedTrack `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Next   *string             `json:"next"`
}

// CatalogTrack converts the API shape into [models.CatalogTrack].
func (t SpotifyTrack) CatalogTrack() models.CatalogTrack {
	track := models.CatalogTrack{
		ID:         t.ID,
		Title:      t.Name,
		Album:      t.Album.Name,
		DurationMs: t.DurationMS,
		ISRC:       t.ExternalIDs.ISRC,
	}
	for _, a := range t.Artists {
		track.Artists = append(track.Artists, a.Name)
	}
	if len(t.Album.Images) > 0 {
		track.CoverURL = t.Album.Images[0].URL
	}
	if t.PreviewURL != nil {
		track.PreviewURL = *t.PreviewURL
	}
	return track
}

// SavedTracksPage is one page of the user's saved tracks.
type SavedTracksPage struct {
	Tracks  []models.CatalogTrack
	Total   int
	HasNext bool
}

// CatalogService is a read-only client for the Spotify Web API plus the OAuth2 flows against
// its accounts service. It holds no tokens: every call takes the bearer token to use.
type CatalogService struct {
	config     *oauth2.Config
	apiURL     string
	httpClient *http.Client
}

// NewCatalogService creates a catalog client from the given OAuth2 credentials and endpoints.
//
// Missing auth_url, token_url or api_url fall back to Spotify's public endpoints. A nil client uses [http.DefaultClient].
func NewCatalogService(credentials map[string]string, client *http.Client) (*CatalogService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	if client == nil {
		client = http.DefaultClient
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  valueOr(credentials["redirect_uri"], "http://127.0.0.1:3000/auth/callback"),
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"user-library-read",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:   valueOr(credentials["auth_url"], spotifyAuthURL),
			TokenURL:  valueOr(credentials["token_url"], spotifyTokenURL),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	return &CatalogService{
		config:     config,
		apiURL:     strings.TrimSuffix(valueOr(credentials["api_url"], spotifyBaseURL), "/"),
		httpClient: client,
	}, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// OAuthConfig exposes the underlying OAuth2 configuration.
func (s *CatalogService) OAuthConfig() *oauth2.Config {
	return s.config
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *CatalogService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// oauthContext makes the oauth2 package use our HTTP client for token requests.
func (s *CatalogService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Exchange trades an authorization code for the user's first token set.
func (s *CatalogService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Refresh performs a refresh-token exchange.
//
// The returned token's RefreshToken is the rotated value when the server sent one and
// refreshToken otherwise. Any failure wraps [shared.ErrRefreshFailed].
func (s *CatalogService) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: empty refresh token", shared.ErrRefreshFailed)
	}

	source := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: status %d: %s", shared.ErrRefreshFailed, retrieveErr.Response.StatusCode, retrieveErr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// doRequest performs an authenticated GET against the Web API and decodes the JSON body into result.
func (s *CatalogService) doRequest(ctx context.Context, accessToken, endpoint string, result any) error {
	if accessToken == "" {
		return shared.ErrNotAuthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: catalog rejected token", shared.ErrNotAuthenticated)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// UserProfile retrieves the authorized user's profile.
func (s *CatalogService) UserProfile(ctx context.Context, accessToken string) (*models.Profile, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, accessToken, "/me", &user); err != nil {
		return nil, err
	}
	return &models.Profile{ID: user.ID, DisplayName: user.DisplayName, Email: user.Email}, nil
}

// Track retrieves a single track by ID.
func (s *CatalogService) Track(ctx context.Context, accessToken, trackID string) (*models.CatalogTrack, error) {
	if trackID == "" {
		return nil, fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	var track SpotifyTrack
	if err := s.doRequest(ctx, accessToken, "/tracks/"+url.PathEscape(trackID), &track); err != nil {
		return nil, err
	}

	ct := track.CatalogTrack()
	return &ct, nil
}

// SeveralTracks retrieves up to [MaxTracksPerRequest] tracks. Unknown ids are omitted from the result.
func (s *CatalogService) SeveralTracks(ctx context.Context, accessToken string, trackIDs []string) ([]models.CatalogTrack, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrInvalidArgument)
	}
	if len(trackIDs) > MaxTracksPerRequest {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidArgument, MaxTracksPerRequest)
	}

	endpoint := "/tracks?ids=" + url.QueryEscape(strings.Join(trackIDs, ","))

	var response struct {
		Tracks []*SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, accessToken, endpoint, &response); err != nil {
		return nil, err
	}

	tracks := make([]models.CatalogTrack, 0, len(response.Tracks))
	for _, t := range response.Tracks {
		if t == nil {
			continue
		}
		tracks = append(tracks, t.CatalogTrack())
	}
	return tracks, nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (s *CatalogService) SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*SavedTracksPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxTracksPerRequest {
		limit = MaxTracksPerRequest
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, accessToken, endpoint, &response); err != nil {
		return nil, err
	}

	page := &SavedTracksPage{Total: response.Total, HasNext: response.Next != nil}
	for _, item := range response.Items {
		page.Tracks = append(page.Tracks, item.Track.CatalogTrack())
	}
	return page, nil
}
