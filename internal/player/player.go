package player

import (
	"slices"
	"sync"
	"time"
)

// RepeatPolicy governs what happens at the end of a track or of the queue.
type RepeatPolicy int

const (
	RepeatNone RepeatPolicy = iota
	RepeatQueue
	RepeatTrack
)

func (r RepeatPolicy) String() string {
	switch r {
	case RepeatQueue:
		return "queue"
	case RepeatTrack:
		return "track"
	default:
		return "off"
	}
}

// restartThreshold is how far into a track Previous restarts it instead of moving back.
const restartThreshold = 3.0

// State is a consistent snapshot of a Player. Queue is a copy of the installed queue.
type State struct {
	Queue    []TrackDescriptor
	Track    TrackDescriptor
	Index    int // -1 when idle
	Playing  bool
	Repeat   RepeatPolicy
	Position float64
}

// Idle reports whether no track is loaded.
func (s State) Idle() bool {
	return s.Index < 0
}

// Current returns the loaded track.
func (s State) Current() (TrackDescriptor, bool) {
	if s.Index < 0 {
		return TrackDescriptor{}, false
	}
	return s.Track, true
}

// Player is the playback queue state machine for one session.
type Player struct {
	mu      sync.Mutex
	sink    Sink
	queue   []TrackDescriptor
	current TrackDescriptor
	index   int
	playing bool
	repeat  RepeatPolicy
}

// New creates an idle Player that owns sink.
func New(sink Sink) *Player {
	return &Player{sink: sink, index: -1}
}

// Play installs queue (or just track when queue is empty) and starts track.
// When track is not in queue it still plays, with the index at the head of the queue, so Next
// continues from the second queued track.
func (p *Player) Play(track TrackDescriptor, queue []TrackDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(queue) == 0 {
		queue = []TrackDescriptor{track}
	}
	p.queue = slices.Clone(queue)

	index := slices.IndexFunc(p.queue, func(t TrackDescriptor) bool { return t.ID == track.ID })
	if index < 0 {
		p.load(0, track)
		return
	}
	p.start(index)
}

// TogglePlay pauses or resumes the loaded track without moving it.
func (p *Player) TogglePlay() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index < 0 {
		return
	}
	if p.playing {
		p.sink.Pause()
	} else {
		p.sink.Play()
	}
	p.playing = !p.playing
}

// Next advances to the following track, wrapping under RepeatQueue. At the end of the queue
// otherwise, playback stops on the last track.
func (p *Player) Next() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next()
}

// Previous restarts the current track when more than 3 seconds in, otherwise moves back one.
func (p *Player) Previous() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index < 0 {
		return
	}
	switch {
	case p.sink.Position() > restartThreshold:
		p.sink.SetPosition(0)
	case p.index > 0:
		p.start(p.index - 1)
	}
}

// OnTrackEnded is called when the sink finishes the current track.
func (p *Player) OnTrackEnded() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended()
}

// Seek moves within the current track, clamped to [0, duration].
func (p *Player) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seek(seconds)
}

// SeekBy moves relative to the current position.
func (p *Player) SeekBy(delta float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seek(p.sink.Position() + delta)
}

// ToggleRepeat cycles off, queue, track and returns the new policy.
func (p *Player) ToggleRepeat() RepeatPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.repeat = (p.repeat + 1) % 3
	return p.repeat
}

// Tick advances a clock-driven sink by d and handles the end of the track.
// It is a no-op for sinks that keep their own time.
func (p *Player) Tick(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clock, ok := p.sink.(Advancer)
	if !ok || p.index < 0 || !p.playing {
		return
	}
	if clock.Advance(d) {
		p.ended()
	}
}

// State returns a snapshot of the player.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return State{
		Queue:    slices.Clone(p.queue),
		Track:    p.current,
		Index:    p.index,
		Playing:  p.playing,
		Repeat:   p.repeat,
		Position: p.sink.Position(),
	}
}

func (p *Player) start(index int) {
	p.load(index, p.queue[index])
}

func (p *Player) load(index int, track TrackDescriptor) {
	p.index = index
	p.current = track
	p.sink.Load(track)
	p.sink.Play()
	p.playing = true
}

func (p *Player) seek(seconds float64) {
	if p.index < 0 {
		return
	}
	seconds = max(seconds, 0)
	if dur := p.current.DurationSeconds; dur > 0 {
		seconds = min(seconds, dur)
	}
	p.sink.SetPosition(seconds)
}

func (p *Player) next() {
	if p.index < 0 {
		return
	}
	switch {
	case p.index+1 < len(p.queue):
		p.start(p.index + 1)
	case p.repeat == RepeatQueue:
		p.start(0)
	default:
		p.sink.Pause()
		p.playing = false
	}
}

func (p *Player) ended() {
	if p.index < 0 {
		return
	}
	if p.repeat == RepeatTrack {
		p.sink.SetPosition(0)
		p.sink.Play()
		p.playing = true
		return
	}
	p.next()
}
