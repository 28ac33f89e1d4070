package models

import (
	"fmt"
	"strings"
	"time"
)

// Credential is the per-user token set used to call the catalog on the user's behalf.
type Credential struct {
	UserID       string
	DisplayName  string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UpdatedAt    time.Time
}

// Stale reports whether the access token expires within margin of now.
func (c Credential) Stale(now time.Time, margin time.Duration) bool {
	return c.ExpiresAt.Sub(now) < margin
}

// Validate checks the fields required to persist the credential.
func (c Credential) Validate() error {
	switch {
	case c.UserID == "":
		return fmt.Errorf("credential user id is required")
	case c.AccessToken == "":
		return fmt.Errorf("credential access token is required")
	case c.RefreshToken == "":
		return fmt.Errorf("credential refresh token is required")
	case c.ExpiresAt.IsZero():
		return fmt.Errorf("credential expiry is required")
	}
	return nil
}

// AcquisitionRecord describes audio that has been converted and stored for a user.
//
// At most one exists per (UserID, TrackRef).
type AcquisitionRecord struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"-"`
	UserID     string    `json:"user_id"`
	TrackRef   string    `json:"track_ref"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	CoverURL   string    `json:"cover_url"`
	StorageKey string    `json:"storage_key"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the fields required to persist the record.
func (r AcquisitionRecord) Validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("acquisition user id is required")
	case r.TrackRef == "":
		return fmt.Errorf("acquisition track reference is required")
	case r.StorageKey == "":
		return fmt.Errorf("acquisition storage key is required")
	}
	return nil
}

// CatalogTrack is track metadata as reported by the music catalog.
type CatalogTrack struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	CoverURL   string   `json:"cover_url,omitempty"`
	PreviewURL string   `json:"preview_url,omitempty"`
	DurationMs int      `json:"duration_ms"`
	ISRC       string   `json:"isrc,omitempty"`
}

// Artist joins the track's artists for display.
func (t CatalogTrack) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// Profile is the authorized catalog user.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// Conversion is the conversion provider's response.
type Conversion struct {
	Success bool            `json:"success"`
	Data    *ConversionData `json:"data,omitempty"`
}

// ConversionData holds the converted track's metadata and the location of its audio.
type ConversionData struct {
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	Cover        string `json:"cover"`
	DownloadLink string `json:"downloadLink"`
}
