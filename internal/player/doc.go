// Package player models a session's playback queue.
//
// A [Player] owns exactly one [Sink] and applies every transition to its queue, index, repeat
// policy and the sink while holding a single lock, so interleaved user and sink events are
// processed one at a time. Transitions never fail: out of range moves degrade to a no-op or to
// stopping at the end of the queue.
//
// A queue installed by [Player.Play] is never mutated; playing again installs a new one.
package player
