package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the paths it serves.
type Handler interface {
	http.Handler
	Routes() []string
}

// Authorizer runs the catalog's authorization code flow. Implemented by services.CatalogService.
type Authorizer interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	UserProfile(ctx context.Context, accessToken string) (*models.Profile, error)
}

// CredentialSaver stores the credential created at authorization time.
type CredentialSaver interface {
	Save(ctx context.Context, cred *models.Credential) error
}

// TokenProvider hands out usable access tokens. Implemented by services.CredentialManager.
type TokenProvider interface {
	UsableCredential(ctx context.Context, userID string) (string, error)
}

// Library lists a user's acquisitions. Implemented by repositories.AcquisitionRepository.
type Library interface {
	ListByUser(ctx context.Context, userID string) ([]*models.AcquisitionRecord, error)
}

// TrackLookup resolves catalog tracks for a user. Implemented by services.UserCatalog.
type TrackLookup interface {
	Track(ctx context.Context, userID, trackID string) (*models.CatalogTrack, error)
	Tracks(ctx context.Context, userID string, ids []string) (map[string]models.CatalogTrack, error)
}

// Acquirer acquires tracks. Implemented by tasks.Pipeline.
type Acquirer interface {
	Acquire(ctx context.Context, req tasks.AcquireRequest, progress chan<- tasks.ProgressUpdate) (*models.AcquisitionRecord, error)
}

// MediaStore serves stored audio. Implemented by blob.FileStore.
type MediaStore interface {
	Open(key string) (io.ReadSeekCloser, error)
	PublicURL(key string) string
}

// Deps are the collaborators the HTTP API is built from.
type Deps struct {
	Config      *shared.Config
	Authorizer  Authorizer
	Credentials CredentialSaver
	Tokens      TokenProvider
	Library     Library
	Tracks      TrackLookup
	Acquirer    Acquirer
	Media       MediaStore
	Logger      *log.Logger
}

// Server is the stash HTTP API.
type Server struct {
	deps     Deps
	sessions *Sessions
	logger   *log.Logger
	router   chi.Router
}

// New builds the router. Every dependency is required.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Authorizer == nil || deps.Credentials == nil || deps.Tokens == nil ||
		deps.Library == nil || deps.Tracks == nil || deps.Acquirer == nil || deps.Media == nil {
		return nil, fmt.Errorf("%w: server dependencies", shared.ErrMissingConfig)
	}

	if deps.Logger == nil {
		deps.Logger = shared.NewLogger(nil)
	}

	sessions, err := NewSessions(
		[]byte(deps.Config.Server.SessionSecret),
		deps.Config.Server.SessionTTL,
		deps.Config.Server.SecureCookies,
	)
	if err != nil {
		return nil, err
	}

	s := &Server{deps: deps, sessions: sessions, logger: deps.Logger}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the session issuer, for tests and tools that mint sessions directly.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	}
}
