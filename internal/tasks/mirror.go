package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

// TrackMirrorer persists catalog metadata. Implemented by repositories.TrackCacheAdapter.
type TrackMirrorer interface {
	CacheTrack(ctx context.Context, track models.CatalogTrack) error
}

const mirrorWriteTimeout = 5 * time.Second

// Mirror writes catalog tracks in the background.
//
// Dispatch never blocks: when the queue is full the track is dropped and counted.
// A nil *Mirror accepts and discards everything.
type Mirror struct {
	writer  TrackMirrorer
	logger  *log.Logger
	queue   chan models.CatalogTrack
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewMirror starts a single background writer with a queue of size entries.
func NewMirror(writer TrackMirrorer, size int, logger *log.Logger) *Mirror {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	m := &Mirror{
		writer: writer,
		logger: logger,
		queue:  make(chan models.CatalogTrack, size),
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Mirror) loop() {
	defer close(m.done)
	for track := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
		if err := m.writer.CacheTrack(ctx, track); err != nil {
			m.logger.Warn("failed to mirror catalog track", "track", track.ID, "error", err)
		}
		cancel()
	}
}

// Dispatch queues track for mirroring.
func (m *Mirror) Dispatch(track models.CatalogTrack) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		m.dropped.Add(1)
		return
	}

	select {
	case m.queue <- track:
	default:
		m.dropped.Add(1)
		m.logger.Debug("mirror queue full, dropping track", "track", track.ID)
	}
}

// Dropped returns how many tracks were discarded.
func (m *Mirror) Dropped() int64 {
	if m == nil {
		return 0
	}
	return m.dropped.Load()
}

// Close stops accepting tracks and waits for queued writes to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}

	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	<-m.done
}
