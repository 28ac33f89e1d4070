package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Every field can be overridden with a STASH_* environment variable.
type Config struct {
	User        UserConfig        `toml:"user"`
	Credentials CredentialsConfig `toml:"credentials"`
	Converter   ConverterConfig   `toml:"converter"`
	Storage     StorageConfig     `toml:"storage"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Cache       CacheConfig       `toml:"cache"`
	Player      PlayerConfig      `toml:"player"`
}

// UserConfig identifies the local user the CLI acts for. Set by "stash auth login".
type UserConfig struct {
	ID string `toml:"id" env:"STASH_USER"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify OAuth client settings and endpoints.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" env:"STASH_SPOTIFY_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"STASH_SPOTIFY_CLIENT_SECRET"`
	RedirectURI  string `toml:"redirect_uri" env:"STASH_SPOTIFY_REDIRECT_URI"`
	AuthURL      string `toml:"auth_url" env:"STASH_SPOTIFY_AUTH_URL"`
	TokenURL     string `toml:"token_url" env:"STASH_SPOTIFY_TOKEN_URL"`
	APIURL       string `toml:"api_url" env:"STASH_SPOTIFY_API_URL"`
}

// Map returns the credentials in the shape expected by services.NewCatalogService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"auth_url":      s.AuthURL,
		"token_url":     s.TokenURL,
		"api_url":       s.APIURL,
	}
}

// ConverterConfig configures the third-party conversion provider.
type ConverterConfig struct {
	BaseURL   string        `toml:"base_url" env:"STASH_CONVERTER_URL"`
	APIKey    string        `toml:"api_key" env:"STASH_CONVERTER_KEY"`
	Host      string        `toml:"host" env:"STASH_CONVERTER_HOST"`
	RateLimit float64       `toml:"rate_limit" env:"STASH_CONVERTER_RATE_LIMIT"`
	Timeout   time.Duration `toml:"timeout" env:"STASH_CONVERTER_TIMEOUT"`
}

// StorageConfig configures the blob store for acquired audio.
type StorageConfig struct {
	Root          string `toml:"root" env:"STASH_STORAGE_ROOT"`
	PublicBaseURL string `toml:"public_base_url" env:"STASH_STORAGE_PUBLIC_URL"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"STASH_DATABASE_PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"STASH_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"STASH_DATABASE_MAX_IDLE_CONNS"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string        `toml:"host" env:"STASH_SERVER_HOST"`
	Port          int           `toml:"port" env:"STASH_SERVER_PORT"`
	SessionSecret string        `toml:"session_secret" env:"STASH_SESSION_SECRET"`
	SessionTTL    time.Duration `toml:"session_ttl" env:"STASH_SESSION_TTL"`
	SecureCookies bool          `toml:"secure_cookies" env:"STASH_SECURE_COOKIES"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig configures the optional redis track metadata cache. An empty URL disables it.
type CacheConfig struct {
	RedisURL string        `toml:"redis_url" env:"STASH_REDIS_URL"`
	TTL      time.Duration `toml:"ttl" env:"STASH_CACHE_TTL"`
}

// PlayerConfig configures the terminal player.
type PlayerConfig struct {
	Tick    time.Duration `toml:"tick" env:"STASH_PLAYER_TICK"`
	LogPath string        `toml:"log_path" env:"STASH_PLAYER_LOG"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their defaults. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ResolveConfig loads a .env file when present, then the TOML file at path when it exists,
// falling back to defaults, and finally applies environment overrides.
func ResolveConfig(path string) (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err == nil {
		return LoadConfig(path)
	}

	config := DefaultConfig()
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
//
// Missing files are skipped; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config fields from STASH_* environment variables.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML, replacing the file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports configuration that would make the server unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		errs = append(errs, fmt.Errorf("spotify client_id and client_secret are required"))
	}
	if c.Converter.BaseURL == "" {
		errs = append(errs, fmt.Errorf("converter base_url is required"))
	}
	if c.Storage.Root == "" {
		errs = append(errs, fmt.Errorf("storage root is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database path is required"))
	}
	if len(c.Server.SessionSecret) < 32 {
		errs = append(errs, fmt.Errorf("server session_secret must be at least 32 bytes"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
