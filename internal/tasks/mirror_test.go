package tasks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

type blockingWriter struct {
	release chan struct{}
	mu      sync.Mutex
	written []string
	err     error
}

func (w *blockingWriter) CacheTrack(_ context.Context, track models.CatalogTrack) error {
	if w.release != nil {
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, track.ID)
	return w.err
}

func (w *blockingWriter) ids() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

func TestMirror(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("close drains queued tracks", func(t *testing.T) {
		w := &blockingWriter{}
		m := NewMirror(w, 8, logger)

		for _, id := range []string{"a", "b", "c"} {
			m.Dispatch(models.CatalogTrack{ID: id, Title: id})
		}
		m.Close()

		if got := w.ids(); len(got) != 3 {
			t.Errorf("expected 3 writes, got %v", got)
		}
		if m.Dropped() != 0 {
			t.Errorf("expected no drops, got %d", m.Dropped())
		}
	})

	t.Run("full queue drops without blocking", func(t *testing.T) {
		w := &blockingWriter{release: make(chan struct{})}
		m := NewMirror(w, 1, logger)

		for i := range 5 {
			m.Dispatch(models.CatalogTrack{ID: string(rune('a' + i))})
		}

		// at most one in flight and one queued
		if m.Dropped() < 3 {
			t.Errorf("expected at least 3 drops, got %d", m.Dropped())
		}

		close(w.release)
		m.Close()
	})

	t.Run("dispatch after close is dropped", func(t *testing.T) {
		w := &blockingWriter{}
		m := NewMirror(w, 1, logger)
		m.Close()
		m.Close()

		m.Dispatch(models.CatalogTrack{ID: "late"})
		if m.Dropped() != 1 {
			t.Errorf("expected late dispatch to be dropped, got %d", m.Dropped())
		}
	})

	t.Run("writer errors are swallowed", func(t *testing.T) {
		w := &blockingWriter{err: errors.New("boom")}
		m := NewMirror(w, 1, logger)
		m.Dispatch(models.CatalogTrack{ID: "x"})
		m.Close()

		if got := w.ids(); len(got) != 1 {
			t.Errorf("expected write attempt, got %v", got)
		}
	})

	t.Run("nil mirror", func(t *testing.T) {
		var m *Mirror
		m.Dispatch(models.CatalogTrack{ID: "x"})
		m.Close()
		if m.Dropped() != 0 {
			t.Error("nil mirror should report zero drops")
		}
	})
}
