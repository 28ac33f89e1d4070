// Package ui implements the terminal player using bubbletea's Elm architecture.
//
// The [Model] lists the user's acquired tracks and renders a now-playing bar for a
// [player.Player]. Enter installs the whole library as the queue starting at the selected track;
// the remaining keys map one to one onto player transitions (space, n, p, ←/→, r).
//
// A tick message advances the player's clock-driven sink every interval, which fires the
// end-of-track transition when a track runs out.
package ui
