package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/repositories"
	"github.com/desertthunder/stash/internal/shared"
	tu "github.com/desertthunder/stash/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: tu.NewLimitedWriter(1, &bytes.Buffer{})})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"setup", "auth", "acquire", "library", "serve", "player"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, cmd := range commands {
			if cmd == nil || cmd.Name != want[i] {
				t.Errorf("command %d: expected %s, got %v", i, want[i], cmd)
			}
		}
	})

	t.Run("userID", func(t *testing.T) {
		tc := []struct {
			name       string
			configured string
			args       []string
			want       string
			wantErr    error
		}{
			{name: "flag wins", configured: "u1", args: []string{"x", "--user", "u2"}, want: "u2"},
			{name: "config fallback", configured: "u1", args: []string{"x"}, want: "u1"},
			{name: "missing", args: []string{"x"}, wantErr: shared.ErrNotAuthenticated},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				runner := NewRunner(RunnerOpts{})
				runner.config.User.ID = tt.configured

				var got string
				var gotErr error
				cmd := &cli.Command{
					Name:  "x",
					Flags: []cli.Flag{userFlag()},
					Action: func(ctx context.Context, cmd *cli.Command) error {
						got, gotErr = runner.userID(cmd)
						return nil
					},
				}
				if err := cmd.Run(context.Background(), tt.args); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if tt.wantErr != nil {
					if !errors.Is(gotErr, tt.wantErr) {
						t.Errorf("expected %v, got %v", tt.wantErr, gotErr)
					}
					return
				}
				if gotErr != nil || got != tt.want {
					t.Errorf("expected %s, got %s (%v)", tt.want, got, gotErr)
				}
			})
		}
	})
}

func TestCallbackAddr(t *testing.T) {
	tc := []struct {
		name     string
		uri      string
		wantAddr string
		wantPath string
		wantErr  bool
	}{
		{name: "full uri", uri: "http://127.0.0.1:8888/callback", wantAddr: "127.0.0.1:8888", wantPath: "/callback"},
		{name: "no path", uri: "http://localhost:3000", wantAddr: "localhost:3000", wantPath: "/auth/callback"},
		{name: "empty uses fallback", uri: "", wantAddr: "127.0.0.1:3000", wantPath: "/auth/callback"},
		{name: "invalid", uri: "http://[::1", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			addr, path, err := callbackAddr(tt.uri, "127.0.0.1:3000")
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if addr != tt.wantAddr || path != tt.wantPath {
				t.Errorf("callbackAddr(%q) = %s %s, want %s %s", tt.uri, addr, path, tt.wantAddr, tt.wantPath)
			}
		})
	}
}

func TestSaveAuthorization(t *testing.T) {
	newRepo := func(t *testing.T) *repositories.CredentialRepository {
		t.Helper()
		db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: filepath.Join(t.TempDir(), "stash.db")})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		return repositories.NewCredentialRepository(db)
	}

	profile := &models.Profile{ID: "u1", DisplayName: "Test User"}
	token := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}

	t.Run("saves credential and default user", func(t *testing.T) {
		repo := newRepo(t)
		configPath := filepath.Join(t.TempDir(), "config.toml")
		runner := NewRunner(RunnerOpts{ConfigPath: configPath, Output: &bytes.Buffer{}})

		cred, err := runner.saveAuthorization(context.Background(), repo, token, profile)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cred.UserID != "u1" || cred.RefreshToken != "refresh" {
			t.Errorf("unexpected credential %+v", cred)
		}

		stored, err := repo.Get(context.Background(), "u1")
		if err != nil {
			t.Fatalf("credential not stored: %v", err)
		}
		if stored.AccessToken != "access" {
			t.Errorf("expected stored access token, got %s", stored.AccessToken)
		}

		loaded, err := shared.LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
		if loaded.User.ID != "u1" {
			t.Errorf("expected default user u1, got %s", loaded.User.ID)
		}
	})

	t.Run("zero expiry defaults to an hour", func(t *testing.T) {
		repo := newRepo(t)
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

		cred, err := runner.saveAuthorization(context.Background(), repo,
			&oauth2.Token{AccessToken: "a", RefreshToken: "r"}, profile)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d := time.Until(cred.ExpiresAt); d < 59*time.Minute || d > time.Hour {
			t.Errorf("expected expiry about an hour out, got %v", d)
		}
		if runner.config.User.ID != "u1" {
			t.Error("expected config to be updated in memory")
		}
	})

	t.Run("nil token", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		_, err := runner.saveAuthorization(context.Background(), newRepo(t), nil, profile)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("handles SaveConfig failure", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{ConfigPath: filepath.Join(t.TempDir(), "missing", "dir", "config.toml")})

		_, err := runner.saveAuthorization(context.Background(), newRepo(t), token, profile)
		if err == nil || !strings.Contains(err.Error(), "failed to save config") {
			t.Errorf("expected save config error, got %v", err)
		}
	})
}

type cliEnv struct {
	configPath string
	config     *shared.Config
	catalog    *tu.FakeCatalog
	converter  *tu.FakeConverter
}

// setupCLI writes a config pointing at fakes and stores a valid credential for u1.
func setupCLI(t *testing.T) *cliEnv {
	t.Helper()

	dir := t.TempDir()
	catalog := tu.NewFakeCatalog(t)
	converter := tu.NewFakeConverter(t)
	catalog.AddTrack(models.CatalogTrack{ID: "t1", Title: "Title t1", Artists: []string{"Artist t1"}, DurationMs: 184000}, true)
	catalog.AddTrack(models.CatalogTrack{ID: "t2", Title: "Title t2", Artists: []string{"Artist t2"}, DurationMs: 200000}, true)

	creds := catalog.Credentials()
	config := shared.DefaultConfig()
	config.User.ID = "u1"
	config.Credentials.Spotify = shared.SpotifyConfig{
		ClientID:     creds["client_id"],
		ClientSecret: creds["client_secret"],
		RedirectURI:  creds["redirect_uri"],
		AuthURL:      creds["auth_url"],
		TokenURL:     creds["token_url"],
		APIURL:       creds["api_url"],
	}
	config.Converter.BaseURL = converter.Server.URL
	config.Converter.RateLimit = 100
	config.Storage.Root = filepath.Join(dir, "media")
	config.Database.Path = filepath.Join(dir, "stash.db")

	configPath := filepath.Join(dir, "config.toml")
	if err := shared.SaveConfig(configPath, config); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	err = repositories.NewCredentialRepository(db).Save(context.Background(), &models.Credential{
		UserID:       "u1",
		DisplayName:  "Test User",
		AccessToken:  "valid-access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}

	return &cliEnv{configPath: configPath, config: config, catalog: catalog, converter: converter}
}

// run executes the app with args after the binary name and --config.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Output: output, Logger: shared.NewLogger(&bytes.Buffer{})})
	app := newApp(runner)

	full := append([]string{"stash", "--config", e.configPath}, args...)
	err := app.Run(context.Background(), full)
	return output.String(), err
}

func TestCommands(t *testing.T) {
	t.Run("setup database", func(t *testing.T) {
		env := setupCLI(t)
		out, err := env.run(t, "setup", "database")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Database ready") {
			t.Errorf("unexpected output %q", out)
		}

		out, err = env.run(t, "setup", "status")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "✓ 0001") {
			t.Errorf("expected first migration applied, got %q", out)
		}
	})

	t.Run("setup config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

		if err := newApp(runner).Run(context.Background(), []string{"stash", "--config", path, "setup", "config"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tu.AssertFileExists(t, path)

		err := newApp(runner).Run(context.Background(), []string{"stash", "--config", path, "setup", "config"})
		if err == nil {
			t.Error("expected error when config already exists")
		}
	})

	t.Run("acquire", func(t *testing.T) {
		env := setupCLI(t)

		out, err := env.run(t, "acquire", "--json", "t1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var rec models.AcquisitionRecord
		if err := json.Unmarshal([]byte(out), &rec); err != nil {
			t.Fatalf("invalid JSON output %q: %v", out, err)
		}
		if rec.UserID != "u1" || rec.TrackRef != "t1" || rec.StorageKey != "u1/t1.audio" {
			t.Errorf("unexpected record %+v", rec)
		}
		tu.AssertFileExists(t, filepath.Join(env.config.Storage.Root, "u1", "t1.audio"))

		out, err = env.run(t, "acquire", "t1")
		if err != nil {
			t.Fatalf("unexpected error on repeat: %v", err)
		}
		if !strings.Contains(out, "Already acquired") {
			t.Errorf("expected existing acquisition progress, got %q", out)
		}
		if got := env.converter.ConvertCalls.Load(); got != 1 {
			t.Errorf("expected one conversion, got %d", got)
		}
	})

	t.Run("acquire without track", func(t *testing.T) {
		env := setupCLI(t)
		if _, err := env.run(t, "acquire"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("acquire liked", func(t *testing.T) {
		env := setupCLI(t)

		out, err := env.run(t, "acquire", "liked", "--rate", "100")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Found 2 saved tracks") || !strings.Contains(out, "Acquired: 2") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("library list", func(t *testing.T) {
		env := setupCLI(t)
		if _, err := env.run(t, "acquire", "--json", "t1"); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}

		out, err := env.run(t, "library", "list", "--format", "csv")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(out, "Track,Title,Artist") || !strings.Contains(out, "u1/t1.audio") {
			t.Errorf("unexpected csv %q", out)
		}

		path := filepath.Join(t.TempDir(), "library.json")
		if _, err := env.run(t, "library", "list", "--format", "json", "--output", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, path), `"track_ref": "t1"`) {
			t.Errorf("expected exported record in %s", path)
		}

		if _, err := env.run(t, "library", "list", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown format, got %v", err)
		}
	})

	t.Run("auth status", func(t *testing.T) {
		env := setupCLI(t)

		out, err := env.run(t, "auth", "status")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Test User (u1)") || !strings.Contains(out, "valid") {
			t.Errorf("unexpected output %q", out)
		}

		out, err = env.run(t, "auth", "status", "--user", "nobody")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Not authorized") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("auth token", func(t *testing.T) {
		env := setupCLI(t)

		out, err := env.run(t, "auth", "token")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.TrimSpace(out) != "valid-access" {
			t.Errorf("expected stored access token, got %q", out)
		}

		if _, err := env.run(t, "auth", "token", "--user", "nobody"); !errors.Is(err, shared.ErrNoCredential) {
			t.Errorf("expected ErrNoCredential, got %v", err)
		}
	})

	t.Run("serve rejects invalid config", func(t *testing.T) {
		env := setupCLI(t)
		if _, err := env.run(t, "serve"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig without a session secret, got %v", err)
		}
	})
}
