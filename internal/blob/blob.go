// Package blob stores acquired audio on the local filesystem under stable per-user keys
// and maps keys to public URLs.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/desertthunder/stash/internal/shared"
)

// AudioSuffix is appended to the track reference to form a storage key.
const AudioSuffix = ".audio"

// Key returns the deterministic storage key for a user's track: "{userID}/{trackRef}.audio".
func Key(userID, trackRef string) string {
	return userID + "/" + trackRef + AudioSuffix
}

// FileStore writes blobs below root. Writes are atomic and overwrite existing objects.
type FileStore struct {
	root      string
	publicURL string
}

// NewFileStore creates root if needed. publicURL is the base under which keys are served.
func NewFileStore(root, publicURL string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: storage root", shared.ErrMissingConfig)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &FileStore{root: root, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// Root returns the directory blobs are written under.
func (s *FileStore) Root() string {
	return s.root
}

// path resolves key below root, rejecting absolute keys and traversal.
func (s *FileStore) path(key string) (string, error) {
	clean := path.Clean(key)
	if key == "" || clean != key || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: storage key %q", shared.ErrInvalidArgument, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes data at key, replacing any existing object. The content type is not persisted;
// audio is served by extension sniffing.
//
// Failures wrap [shared.ErrStorageWriteFailed].
func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	target, err := s.path(key)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageWriteFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStorageWriteFailed, err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create dir: %v", shared.ErrStorageWriteFailed, err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", shared.ErrStorageWriteFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %v", shared.ErrStorageWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", shared.ErrStorageWriteFailed, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("%w: rename: %v", shared.ErrStorageWriteFailed, err)
	}
	return nil
}

// Open returns a reader for the object at key. The caller closes it.
func (s *FileStore) Open(key string) (io.ReadSeekCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: blob %s", shared.ErrRecordNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Exists reports whether an object is stored at key.
func (s *FileStore) Exists(key string) bool {
	p, err := s.path(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// PublicURL returns the stable retrieval URL for key.
func (s *FileStore) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicURL + "/" + strings.Join(segments, "/")
}
