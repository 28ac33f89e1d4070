package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/stash/internal/player"
	"github.com/desertthunder/stash/internal/shared"
)

var _ list.Item = trackItem{}

// trackItem wraps [player.TrackDescriptor] to implement [list.Item].
type trackItem struct {
	track player.TrackDescriptor
	album string
}

func (i trackItem) FilterValue() string { return i.track.Title + " " + i.track.Artist }
func (i trackItem) Title() string       { return i.track.Title }
func (i trackItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.track.Artist, shared.FormatDuration(int(i.track.DurationSeconds*1000)))
	if i.album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.album)
	}
	return desc
}
