package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/repositories"
	"github.com/desertthunder/stash/internal/shared"
	tu "github.com/desertthunder/stash/internal/testing"
	"golang.org/x/oauth2"
)

// memoryStore is an in-memory [CredentialStore] that counts writes.
type memoryStore struct {
	mu     sync.Mutex
	creds  map[string]models.Credential
	writes int
}

func newMemoryStore(creds ...models.Credential) *memoryStore {
	s := &memoryStore{creds: make(map[string]models.Credential)}
	for _, c := range creds {
		s.creds[c.UserID] = c
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, userID string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNoCredential, userID)
	}
	return &c, nil
}

func (s *memoryStore) UpdateRefreshed(_ context.Context, userID, previousRefresh, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[userID]
	if !ok || c.RefreshToken != previousRefresh {
		return shared.ErrRecordConflict
	}
	c.AccessToken, c.RefreshToken, c.ExpiresAt = accessToken, refreshToken, expiresAt
	s.creds[userID] = c
	s.writes++
	return nil
}

func (s *memoryStore) snapshot(userID string) (models.Credential, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[userID], s.writes
}

// stubRefresher returns a fixed token or error and counts calls.
type stubRefresher struct {
	token *oauth2.Token
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (r *stubRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	tok := *r.token
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return &tok, nil
}

func TestCredentialManager(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	credential := func(expiresIn time.Duration) models.Credential {
		return models.Credential{
			UserID:       "u1",
			AccessToken:  "cached-access",
			RefreshToken: "refresh-1",
			ExpiresAt:    now.Add(expiresIn),
		}
	}

	t.Run("No Credential", func(t *testing.T) {
		m := NewCredentialManager(newMemoryStore(), &stubRefresher{}, nil)
		m.SetClock(clock)

		if _, err := m.UsableCredential(ctx, "u1"); !errors.Is(err, shared.ErrNoCredential) {
			t.Errorf("expected ErrNoCredential, got %v", err)
		}
	})

	t.Run("Fresh Token Skips Network", func(t *testing.T) {
		refresher := &stubRefresher{}
		store := newMemoryStore(credential(time.Hour))
		m := NewCredentialManager(store, refresher, nil)
		m.SetClock(clock)

		token, err := m.UsableCredential(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "cached-access" {
			t.Errorf("expected cached token, got %s", token)
		}
		if refresher.calls.Load() != 0 {
			t.Errorf("expected no refresh, got %d", refresher.calls.Load())
		}
		if _, writes := store.snapshot("u1"); writes != 0 {
			t.Errorf("expected no writes, got %d", writes)
		}
	})

	t.Run("Stale Inside Margin", func(t *testing.T) {
		refresher := &stubRefresher{token: &oauth2.Token{AccessToken: "new-access", Expiry: now.Add(time.Hour)}}
		store := newMemoryStore(credential(4 * time.Minute))
		m := NewCredentialManager(store, refresher, nil)
		m.SetClock(clock)

		token, err := m.UsableCredential(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "new-access" {
			t.Errorf("expected refreshed token, got %s", token)
		}

		stored, writes := store.snapshot("u1")
		if writes != 1 {
			t.Errorf("expected exactly one write, got %d", writes)
		}
		if stored.RefreshToken != "refresh-1" {
			t.Errorf("refresh token should be retained without rotation, got %s", stored.RefreshToken)
		}
		if stored.ExpiresAt.Sub(now) < RefreshMargin {
			t.Errorf("stored expiry %v is inside the refresh margin", stored.ExpiresAt)
		}
	})

	t.Run("Rotation Persisted", func(t *testing.T) {
		refresher := &stubRefresher{token: &oauth2.Token{AccessToken: "new-access", RefreshToken: "refresh-2", Expiry: now.Add(time.Hour)}}
		store := newMemoryStore(credential(-time.Minute))
		m := NewCredentialManager(store, refresher, nil)
		m.SetClock(clock)

		if _, err := m.UsableCredential(ctx, "u1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stored, _ := store.snapshot("u1")
		if stored.RefreshToken != "refresh-2" {
			t.Errorf("expected rotated refresh token, got %s", stored.RefreshToken)
		}
	})

	t.Run("Missing Expiry Defaults To An Hour", func(t *testing.T) {
		refresher := &stubRefresher{token: &oauth2.Token{AccessToken: "new-access"}}
		store := newMemoryStore(credential(-time.Minute))
		m := NewCredentialManager(store, refresher, nil)
		m.SetClock(clock)

		if _, err := m.UsableCredential(ctx, "u1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stored, _ := store.snapshot("u1")
		if !stored.ExpiresAt.Equal(now.Add(time.Hour)) {
			t.Errorf("expected expiry one hour from now, got %v", stored.ExpiresAt)
		}
	})

	t.Run("Failed Refresh Is Non Destructive", func(t *testing.T) {
		refresher := &stubRefresher{err: errors.New("connection reset")}
		before := credential(-time.Minute)
		store := newMemoryStore(before)
		m := NewCredentialManager(store, refresher, nil)
		m.SetClock(clock)

		_, err := m.UsableCredential(ctx, "u1")
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}

		after, writes := store.snapshot("u1")
		if writes != 0 {
			t.Errorf("expected no writes after failed refresh, got %d", writes)
		}
		if after != before {
			t.Errorf("credential changed after failed refresh: %+v", after)
		}
	})

	t.Run("Concurrent Refresh Shares One Exchange", func(t *testing.T) {
		refresher := &stubRefresher{
			token: &oauth2.Token{AccessToken: "new-access", Expiry: now.Add(time.Hour)},
			delay: 50 * time.Millisecond,
		}
		store := newMemoryStore(credential(-time.Minute))
		m := NewCredentialManager(store, refresher, nil)
		m.SetClock(clock)

		var wg sync.WaitGroup
		tokens := make([]string, 10)
		for i := range tokens {
			wg.Add(1)
			go func() {
				defer wg.Done()
				token, err := m.UsableCredential(ctx, "u1")
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				tokens[i] = token
			}()
		}
		wg.Wait()

		for _, token := range tokens {
			if token != "new-access" {
				t.Errorf("expected new-access, got %s", token)
			}
		}
		if calls := refresher.calls.Load(); calls != 1 {
			t.Errorf("expected one refresh exchange, got %d", calls)
		}
	})

	t.Run("Cancelled Caller Does Not Fail Joined Caller", func(t *testing.T) {
		refresher := &stubRefresher{
			token: &oauth2.Token{AccessToken: "new-access", Expiry: now.Add(time.Hour)},
			delay: 200 * time.Millisecond,
		}
		store := newMemoryStore(credential(-time.Minute))
		m := NewCredentialManager(store, refresher, nil)
		m.SetClock(clock)

		firstCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		firstErr := make(chan error, 1)
		go func() {
			_, err := m.UsableCredential(firstCtx, "u1")
			firstErr <- err
		}()
		tu.WaitFor(t, func() bool { return refresher.calls.Load() == 1 })

		type result struct {
			token string
			err   error
		}
		second := make(chan result, 1)
		go func() {
			token, err := m.UsableCredential(ctx, "u1")
			second <- result{token, err}
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		if err := <-firstErr; !errors.Is(err, context.Canceled) {
			t.Errorf("expected the cancelled caller to see context.Canceled, got %v", err)
		}

		got := <-second
		if got.err != nil {
			t.Fatalf("joined caller failed: %v", got.err)
		}
		if got.token != "new-access" {
			t.Errorf("expected new-access, got %s", got.token)
		}
		if calls := refresher.calls.Load(); calls != 1 {
			t.Errorf("expected one refresh exchange, got %d", calls)
		}
		if stored, _ := store.snapshot("u1"); stored.AccessToken != "new-access" {
			t.Errorf("expected refreshed credential to be stored, got %s", stored.AccessToken)
		}
	})

	t.Run("Conflicting Write Still Returns Token", func(t *testing.T) {
		store := newMemoryStore(credential(-time.Minute))
		refresher := &stubRefresher{token: &oauth2.Token{AccessToken: "new-access", Expiry: now.Add(time.Hour)}}
		conflicting := &conflictStore{memoryStore: store}
		m := NewCredentialManager(conflicting, refresher, nil)
		m.SetClock(clock)

		token, err := m.UsableCredential(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "new-access" {
			t.Errorf("expected new-access, got %s", token)
		}
	})
}

// conflictStore rotates the stored refresh token just before every conditional update.
type conflictStore struct {
	*memoryStore
}

func (s *conflictStore) UpdateRefreshed(ctx context.Context, userID, previousRefresh, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	c := s.creds[userID]
	c.RefreshToken = "rotated-elsewhere"
	s.creds[userID] = c
	s.mu.Unlock()
	return s.memoryStore.UpdateRefreshed(ctx, userID, previousRefresh, accessToken, refreshToken, expiresAt)
}

func TestCredentialManagerIntegration(t *testing.T) {
	ctx := context.Background()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: filepath.Join(t.TempDir(), "stash.db")})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	repo := repositories.NewCredentialRepository(db)
	if err := repo.Save(ctx, &models.Credential{
		UserID:       "u1",
		AccessToken:  "expired-access",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("failed to save credential: %v", err)
	}

	fake := tu.NewFakeCatalog(t)
	fake.IssuedRefresh = "refresh-2"
	catalog, err := NewCatalogService(fake.Credentials(), nil)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}

	m := NewCredentialManager(repo, catalog, nil)

	token, err := m.UsableCredential(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "fresh-access" {
		t.Errorf("expected fresh-access, got %s", token)
	}

	stored, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to read credential: %v", err)
	}
	if stored.RefreshToken != "refresh-2" || stored.AccessToken != "fresh-access" {
		t.Errorf("unexpected stored credential %+v", stored)
	}

	if _, err := m.UsableCredential(ctx, "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls := fake.RefreshCalls.Load(); calls != 1 {
		t.Errorf("second call should use the cached token, got %d refreshes", calls)
	}
}
