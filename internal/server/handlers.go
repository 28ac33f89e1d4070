package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/stash/internal/blob"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/player"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/go-chi/chi/v5"
)

// StateCookie carries the OAuth state between /auth/login and /auth/callback.
const StateCookie = "stash_oauth_state"

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   s.deps.Config.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.deps.Authorizer.AuthURL(state), http.StatusFound)
}

type callbackResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// handleCallback completes authorization: it creates or replaces the user's credential and
// starts a session.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	cookie, err := r.Cookie(StateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != query.Get("state") {
		writeError(w, fmt.Errorf("%w: state mismatch", shared.ErrInvalidArgument))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: StateCookie, Path: "/auth", MaxAge: -1})

	code := query.Get("code")
	if code == "" {
		writeError(w, fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description")))
		return
	}

	ctx := r.Context()
	token, err := s.deps.Authorizer.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("code exchange failed", "error", err)
		writeError(w, err)
		return
	}

	profile, err := s.deps.Authorizer.UserProfile(ctx, token.AccessToken)
	if err != nil {
		s.logger.Warn("profile fetch failed", "error", err)
		writeError(w, err)
		return
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
	if err := s.deps.Credentials.Save(ctx, cred); err != nil {
		s.logger.Error("failed to save credential", "user", profile.ID, "error", err)
		writeError(w, err)
		return
	}

	if err := s.sessions.SetCookie(w, profile.ID); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info("user authorized", "user", profile.ID)
	writeJSON(w, http.StatusOK, callbackResponse{UserID: profile.ID, DisplayName: profile.DisplayName})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	token, err := s.deps.Tokens.UsableCredential(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

type acquireRequest struct {
	TrackID string `json:"trackId"`
	URL     string `json:"url"`
}

type acquireResponse struct {
	Record *models.AcquisitionRecord `json:"record"`
	Track  player.TrackDescriptor    `json:"track"`
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var body acquireRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: request body: %v", shared.ErrInvalidInput, err))
		return
	}

	rec, err := s.deps.Acquirer.Acquire(r.Context(), tasks.AcquireRequest{
		UserID:     userID,
		TrackRef:   body.TrackID,
		CatalogURL: body.URL,
	}, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, acquireResponse{
		Record: rec,
		Track:  player.FromRecord(rec, s.deps.Media.PublicURL),
	})
}

// LibraryEntry is an acquisition with its playable URL.
type LibraryEntry struct {
	*models.AcquisitionRecord
	URL string `json:"url"`
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := UserID(ctx)

	records, err := s.deps.Library.ListByUser(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	var unknown []string
	for _, rec := range records {
		if rec.DurationMs == 0 {
			unknown = append(unknown, rec.TrackRef)
		}
	}

	if len(unknown) > 0 {
		tracks, err := s.deps.Tracks.Tracks(ctx, userID, unknown)
		if err != nil {
			s.logger.Warn("duration enrichment skipped", "user", userID, "error", err)
		}
		for _, rec := range records {
			if t, ok := tracks[rec.TrackRef]; ok && rec.DurationMs == 0 {
				rec.DurationMs = t.DurationMs
			}
		}
	}

	entries := make([]LibraryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, LibraryEntry{AcquisitionRecord: rec, URL: s.deps.Media.PublicURL(rec.StorageKey)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": entries})
}

// handleTrack describes a catalog track's preview for the player.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	track, err := s.deps.Tracks.Track(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player.FromCatalog(*track))
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	f, err := s.deps.Media.Open(key)
	if err != nil {
		if !errors.Is(err, shared.ErrRecordNotFound) && !errors.Is(err, shared.ErrInvalidArgument) {
			s.logger.Error("failed to open media", "key", key, "error", err)
		}
		writeError(w, err)
		return
	}
	defer f.Close()

	if strings.HasSuffix(key, blob.AudioSuffix) {
		w.Header().Set("Content-Type", "audio/mpeg")
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, key, time.Time{}, f)
}
