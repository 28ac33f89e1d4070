package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stash/internal/player"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/ui"
	"github.com/urfave/cli/v3"
)

// Player launches the interactive terminal player over the user's library.
func (r *Runner) Player(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.userID(cmd)
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Player.LogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	d, err := r.openStore()
	if err != nil {
		return err
	}
	defer d.close()

	model := ui.NewModel(ctx, ui.Options{
		UserID:    userID,
		Library:   d.acquisitions,
		Player:    player.New(player.NewMemorySink()),
		PublicURL: d.blobs.PublicURL,
		Tick:      r.config.Player.Tick,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
