package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/stash/internal/shared"
	tu "github.com/desertthunder/stash/internal/testing"
)

func TestKey(t *testing.T) {
	if got := Key("u1", "t1"); got != "u1/t1.audio" {
		t.Errorf("expected u1/t1.audio, got %s", got)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T) *FileStore {
		t.Helper()
		store, err := NewFileStore(filepath.Join(t.TempDir(), "media"), "http://127.0.0.1:3000/media/")
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		return store
	}

	t.Run("Put And Open", func(t *testing.T) {
		store := newStore(t)

		if err := store.Put(ctx, "u1/t1.audio", []byte("payload"), "audio/mpeg"); err != nil {
			t.Fatalf("failed to put: %v", err)
		}

		tu.AssertFileExists(t, filepath.Join(store.Root(), "u1", "t1.audio"))

		r, err := store.Open("u1/t1.audio")
		if err != nil {
			t.Fatalf("failed to open: %v", err)
		}
		defer r.Close()

		data, _ := io.ReadAll(r)
		if string(data) != "payload" {
			t.Errorf("unexpected content %q", data)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		store := newStore(t)

		for _, payload := range []string{"first", "second"} {
			if err := store.Put(ctx, "u1/t1.audio", []byte(payload), "audio/mpeg"); err != nil {
				t.Fatalf("failed to put: %v", err)
			}
		}

		got := tu.MustReadFile(t, filepath.Join(store.Root(), "u1", "t1.audio"))
		if got != "second" {
			t.Errorf("expected overwrite, got %q", got)
		}

		entries, _ := os.ReadDir(filepath.Join(store.Root(), "u1"))
		if len(entries) != 1 {
			t.Errorf("expected temp files to be cleaned up, found %d entries", len(entries))
		}
	})

	t.Run("Rejects Traversal", func(t *testing.T) {
		store := newStore(t)

		for _, key := range []string{"../escape.audio", "/abs.audio", "u1/../../x", "", "u1//t1"} {
			if err := store.Put(ctx, key, []byte("x"), "audio/mpeg"); !errors.Is(err, shared.ErrStorageWriteFailed) {
				t.Errorf("key %q: expected ErrStorageWriteFailed, got %v", key, err)
			}
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		store := newStore(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		if err := store.Put(cancelled, "u1/t1.audio", []byte("x"), "audio/mpeg"); !errors.Is(err, shared.ErrStorageWriteFailed) {
			t.Errorf("expected ErrStorageWriteFailed, got %v", err)
		}
		if store.Exists("u1/t1.audio") {
			t.Error("nothing should be written after cancellation")
		}
	})

	t.Run("Open Missing", func(t *testing.T) {
		store := newStore(t)

		if _, err := store.Open("u1/missing.audio"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("PublicURL", func(t *testing.T) {
		store := newStore(t)

		if got := store.PublicURL("u1/t1.audio"); got != "http://127.0.0.1:3000/media/u1/t1.audio" {
			t.Errorf("unexpected url %s", got)
		}
		if got := store.PublicURL("user one/t1.audio"); got != "http://127.0.0.1:3000/media/user%20one/t1.audio" {
			t.Errorf("expected escaped segment, got %s", got)
		}
	})

	t.Run("Missing Root", func(t *testing.T) {
		if _, err := NewFileStore("", ""); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}
