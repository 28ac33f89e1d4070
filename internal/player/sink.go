package player

import (
	"sync"
	"time"
)

// Sink is the single audio output a Player drives.
type Sink interface {
	// Load replaces the current source. The sink is paused at position 0 afterwards.
	Load(track TrackDescriptor)
	Play()
	Pause()
	SetPosition(seconds float64)
	Position() float64
}

// Advancer is a Sink driven by an external clock. Advance reports whether the loaded
// track reached its end during d.
type Advancer interface {
	Advance(d time.Duration) bool
}

// MemorySink simulates playback by moving a position forward while playing.
type MemorySink struct {
	mu       sync.Mutex
	track    *TrackDescriptor
	playing  bool
	position float64
	loads    int
}

// NewMemorySink returns an empty, paused sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Load(track TrackDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = &track
	s.playing = false
	s.position = 0
	s.loads++
}

func (s *MemorySink) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track != nil {
		s.playing = true
	}
}

func (s *MemorySink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
}

func (s *MemorySink) SetPosition(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = seconds
}

func (s *MemorySink) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Playing reports whether the sink is currently producing audio.
func (s *MemorySink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Loaded returns the current source, if any.
func (s *MemorySink) Loaded() (TrackDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return TrackDescriptor{}, false
	}
	return *s.track, true
}

// Loads counts how many times a source was installed.
func (s *MemorySink) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// Advance moves the position forward by d while playing. Tracks with unknown duration never end.
func (s *MemorySink) Advance(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || s.track == nil {
		return false
	}

	s.position += d.Seconds()
	if dur := s.track.DurationSeconds; dur > 0 && s.position >= dur {
		s.position = dur
		s.playing = false
		return true
	}
	return false
}
