package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Acquire converts one catalog track and stores its audio.
func (r *Runner) Acquire(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.userID(cmd)
	if err != nil {
		return err
	}

	req := tasks.AcquireRequest{
		UserID:     userID,
		TrackRef:   cmd.StringArg("track-id"),
		CatalogURL: cmd.String("url"),
	}
	if req.TrackRef == "" && req.CatalogURL == "" {
		return fmt.Errorf("%w: track id or --url", shared.ErrMissingArgument)
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	useJSON := cmd.Bool("json")

	var progress chan tasks.ProgressUpdate
	var done <-chan struct{}
	if !useJSON {
		progress = make(chan tasks.ProgressUpdate, 16)
		done = r.printProgress(progress)
	}

	rec, err := d.pipeline.Acquire(ctx, req, progress)
	if progress != nil {
		close(progress)
		<-done
	}
	if err != nil {
		return err
	}

	if useJSON {
		return r.writeJSON(rec, true)
	}

	r.writePlain("\n✓ %s - %s\n", rec.Artist, rec.Title)
	r.writePlain("  Stored as: %s\n", rec.StorageKey)
	r.writePlain("  URL: %s\n", d.blobs.PublicURL(rec.StorageKey))
	return nil
}

// AcquireLiked acquires the user's saved tracks with a rate-limited worker pool.
func (r *Runner) AcquireLiked(ctx context.Context, cmd *cli.Command) error {
	userID, err := r.userID(cmd)
	if err != nil {
		return err
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	opts := tasks.BulkAcquireOpts{
		NumWorkers: cmd.Int("workers"),
		RateLimit:  cmd.Float("rate"),
	}

	useJSON := cmd.Bool("json")

	var progress chan tasks.ProgressUpdate
	var done <-chan struct{}
	if !useJSON {
		progress = make(chan tasks.ProgressUpdate, 50)
		done = r.printProgress(progress)
	}

	r.logger.Info("acquiring saved tracks", "user", userID, "limit", cmd.Int("limit"))
	result, err := d.pipeline.AcquireSaved(ctx, userID, cmd.Int("limit"), opts, progress)
	if progress != nil {
		close(progress)
		<-done
	}
	if result == nil {
		return err
	}

	if useJSON {
		if jsonErr := r.writeJSON(result, true); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Acquisition Complete")
	r.writePlain("Total: %d\n", result.Total)
	r.writePlain("Acquired: %d\n", result.Acquired)
	r.writePlain("Already in library: %d\n", result.Existing)
	r.writePlain("Failed: %d\n", result.Failed)

	if result.Failed > 0 {
		r.writePlain("\nFailed tracks:\n")
		for _, res := range result.Results {
			if res.Error == nil {
				continue
			}
			stage := "unknown"
			if phase, ok := tasks.StageOf(res.Error); ok {
				stage = phase.String()
			}
			r.writePlain("  - %s (%s): %v\n", res.TrackRef, stage, res.Error)
		}
	}
	return err
}

// printProgress writes progress messages until the channel is closed. The returned channel
// is closed once every message has been written.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.FetchLiked:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.BulkAcquire:
				r.writePlain("   %s\n", update.Message)
			default:
				r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
			}
		}
	}()
	return done
}
