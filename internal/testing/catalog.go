package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/stash/internal/models"
)

// FakeCatalog serves a Spotify-shaped Web API under /v1 and an OAuth token endpoint at /token.
//
// Configure the exported fields before issuing requests; counters may be read at any time.
type FakeCatalog struct {
	Server *httptest.Server

	Profile models.Profile

	// IssuedAccess and IssuedRefresh are returned by the token endpoint. An empty
	// IssuedRefresh omits refresh_token from the response.
	IssuedAccess  string
	IssuedRefresh string
	ExpiresIn     int
	FailRefresh   bool

	TrackCalls    atomic.Int32
	BatchCalls    atomic.Int32
	SavedCalls    atomic.Int32
	RefreshCalls  atomic.Int32
	ExchangeCalls atomic.Int32

	mu        sync.Mutex
	tracks    map[string]models.CatalogTrack
	saved     []string
	lastToken string
}

// NewFakeCatalog starts a fake catalog that is closed when the test ends.
func NewFakeCatalog(t *testing.T) *FakeCatalog {
	t.Helper()

	f := &FakeCatalog{
		Profile:       models.Profile{ID: "u1", DisplayName: "Test User", Email: "u1@example.com"},
		IssuedAccess:  "fresh-access",
		IssuedRefresh: "",
		ExpiresIn:     3600,
		tracks:        make(map[string]models.CatalogTrack),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("GET /v1/me", f.authorized(f.handleProfile))
	mux.HandleFunc("GET /v1/me/tracks", f.authorized(f.handleSaved))
	mux.HandleFunc("GET /v1/tracks", f.authorized(f.handleSeveral))
	mux.HandleFunc("GET /v1/tracks/{id}", f.authorized(f.handleTrack))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Credentials returns a credentials map pointing the catalog client at this fake.
func (f *FakeCatalog) Credentials() map[string]string {
	return map[string]string{
		"client_id":     "test_client_id",
		"client_secret": "test_client_secret",
		"redirect_uri":  "http://127.0.0.1:3000/auth/callback",
		"auth_url":      f.Server.URL + "/authorize",
		"token_url":     f.Server.URL + "/token",
		"api_url":       f.Server.URL + "/v1",
	}
}

// AddTrack makes track available; saved also adds it to the user's saved tracks.
func (f *FakeCatalog) AddTrack(track models.CatalogTrack, saved bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[track.ID] = track
	if saved {
		f.saved = append(f.saved, track.ID)
	}
}

// LastToken is the bearer token of the most recent API request.
func (f *FakeCatalog) LastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

func (f *FakeCatalog) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			http.Error(w, `{"error":{"status":401,"message":"No token provided"}}`, http.StatusUnauthorized)
			return
		}

		f.mu.Lock()
		f.lastToken = token
		f.mu.Unlock()
		next(w, r)
	}
}

func (f *FakeCatalog) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		f.RefreshCalls.Add(1)
		if f.FailRefresh {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Refresh token revoked"}`))
			return
		}
	case "authorization_code":
		f.ExchangeCalls.Add(1)
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
			return
		}
	default:
		http.Error(w, "unsupported grant type", http.StatusBadRequest)
		return
	}

	body := map[string]any{
		"access_token": f.IssuedAccess,
		"token_type":   "Bearer",
		"scope":        "user-read-private user-library-read",
	}
	if f.ExpiresIn > 0 {
		body["expires_in"] = f.ExpiresIn
	}
	if f.IssuedRefresh != "" {
		body["refresh_token"] = f.IssuedRefresh
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *FakeCatalog) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           f.Profile.ID,
		"display_name": f.Profile.DisplayName,
		"email":        f.Profile.Email,
	})
}

func (f *FakeCatalog) handleTrack(w http.ResponseWriter, r *http.Request) {
	f.TrackCalls.Add(1)

	f.mu.Lock()
	track, ok := f.tracks[r.PathValue("id")]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"error":{"status":404,"message":"Not found"}}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, spotifyTrackJSON(track))
}

func (f *FakeCatalog) handleSeveral(w http.ResponseWriter, r *http.Request) {
	f.BatchCalls.Add(1)

	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	if len(ids) > 50 {
		http.Error(w, `{"error":{"status":400,"message":"Too many ids requested"}}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tracks := make([]any, len(ids))
	for i, id := range ids {
		if track, ok := f.tracks[id]; ok {
			tracks[i] = spotifyTrackJSON(track)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func (f *FakeCatalog) handleSaved(w http.ResponseWriter, r *http.Request) {
	f.SavedCalls.Add(1)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	items := []any{}
	end := min(offset+limit, len(f.saved))
	for i := offset; i < end; i++ {
		items = append(items, map[string]any{
			"added_at": "2025-01-01T00:00:00Z",
			"track":    spotifyTrackJSON(f.tracks[f.saved[i]]),
		})
	}

	var next any
	if end < len(f.saved) {
		next = f.Server.URL + "/v1/me/tracks?offset=" + strconv.Itoa(end)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  len(f.saved),
		"limit":  limit,
		"offset": offset,
		"next":   next,
	})
}

func spotifyTrackJSON(t models.CatalogTrack) map[string]any {
	artists := make([]any, len(t.Artists))
	for i, name := range t.Artists {
		artists[i] = map[string]any{"id": "artist-" + strconv.Itoa(i), "name": name}
	}

	images := []any{}
	if t.CoverURL != "" {
		images = append(images, map[string]any{"url": t.CoverURL, "height": 640, "width": 640})
	}

	var preview any
	if t.PreviewURL != "" {
		preview = t.PreviewURL
	}

	return map[string]any{
		"id":           t.ID,
		"name":         t.Title,
		"artists":      artists,
		"album":        map[string]any{"id": "album-" + t.ID, "name": t.Album, "images": images},
		"duration_ms":  t.DurationMs,
		"preview_url":  preview,
		"external_ids": map[string]any{"isrc": t.ISRC},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
