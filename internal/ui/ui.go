package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/player"
	"github.com/desertthunder/stash/internal/shared"
)

const seekStep = 10.0

// Library lists a user's acquisitions. Implemented by repositories.AcquisitionRepository.
type Library interface {
	ListByUser(ctx context.Context, userID string) ([]*models.AcquisitionRecord, error)
}

// Options configures a [Model].
type Options struct {
	UserID    string
	Library   Library
	Player    *player.Player
	PublicURL func(key string) string
	Tick      time.Duration
}

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	opts   Options
	player *player.Player
	tracks []player.TrackDescriptor
	list   list.Model
	loaded bool
	width  int
	height int
	err    error
	help   help.Model
	keys   keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Player == nil {
		opts.Player = player.New(player.NewMemorySink())
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Library"
	l.SetShowHelp(false)

	return &Model{
		ctx:    ctx,
		opts:   opts,
		player: opts.Player,
		list:   l,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init loads the library and starts the playback clock.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchLibrary(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, max(msg.Height-10, 4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		switch msg.kind {
		case MsgLibraryFetched:
			data := msg.data.(libraryFetched)
			m.loaded = true
			if data.err != nil {
				m.err = data.err
				return m, nil
			}
			m.err = nil
			m.setLibrary(data.records)
			return m, nil

		case MsgTick:
			m.player.Tick(m.opts.Tick)
			return m, m.tick()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the library and the now-playing bar.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+r to retry, q to quit", m.err))
	}
	if !m.loaded {
		return styles.help.Render("Loading library...")
	}

	var body string
	if len(m.tracks) == 0 {
		body = styles.warn.Render("No acquired tracks yet. Run \"stash acquire <track-id>\" first.")
	} else {
		body = m.list.View()
	}

	return fmt.Sprintf("%s\n%s\n%s", body, m.renderNowPlaying(), m.help.ShortHelpView(m.keys.ShortHelp()))
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.reload):
		m.loaded = false
		return m, m.fetchLibrary()
	case key.Matches(msg, m.keys.play):
		if item, ok := m.list.SelectedItem().(trackItem); ok {
			m.player.Play(item.track, m.tracks)
		}
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		m.player.TogglePlay()
		return m, nil
	case key.Matches(msg, m.keys.next):
		m.player.Next()
		return m, nil
	case key.Matches(msg, m.keys.previous):
		m.player.Previous()
		return m, nil
	case key.Matches(msg, m.keys.back):
		m.player.SeekBy(-seekStep)
		return m, nil
	case key.Matches(msg, m.keys.forward):
		m.player.SeekBy(seekStep)
		return m, nil
	case key.Matches(msg, m.keys.repeat):
		m.player.ToggleRepeat()
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) setLibrary(records []*models.AcquisitionRecord) {
	m.tracks = player.FromRecords(records, m.opts.PublicURL)
	items := make([]list.Item, len(m.tracks))
	for i, t := range m.tracks {
		items[i] = trackItem{track: t, album: records[i].Album}
	}
	m.list.SetItems(items)
	m.list.Title = fmt.Sprintf("Library (%d tracks)", len(items))
}

func (m *Model) renderNowPlaying() string {
	state := m.player.State()
	current, ok := state.Current()
	if !ok {
		return styles.bar.Render(styles.help.Render("Nothing playing"))
	}

	icon := "⏸"
	if state.Playing {
		icon = "▶"
	}

	position := shared.FormatDuration(int(state.Position * 1000))
	if position == "--:--" {
		position = "0:00"
	}

	line := fmt.Sprintf("%s %s - %s  %s / %s  [%d/%d]  repeat: %s",
		icon,
		current.Artist,
		styles.ok.Render(current.Title),
		position,
		shared.FormatDuration(int(current.DurationSeconds*1000)),
		state.Index+1,
		len(state.Queue),
		state.Repeat,
	)
	return styles.bar.Render(line + "\n" + progressBar(state.Position, current.DurationSeconds, 40))
}

func progressBar(position, duration float64, width int) string {
	if duration <= 0 {
		return strings.Repeat("─", width)
	}
	filled := min(int(position/duration*float64(width)), width)
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

func (m *Model) fetchLibrary() tea.Cmd {
	return func() tea.Msg {
		records, err := m.opts.Library.ListByUser(m.ctx, m.opts.UserID)
		return libraryFetchedMsg(records, err)
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}
