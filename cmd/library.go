package main

import (
	"context"
	"strings"

	"github.com/desertthunder/stash/internal/formatter"
	"github.com/urfave/cli/v3"
)

// LibraryList renders the user's acquisitions in the requested format.
func (r *Runner) LibraryList(ctx context.Context, cmd *cli.Command) error {
	export, err := r.libraryExport(ctx, cmd)
	if err != nil {
		return err
	}

	format := strings.ToLower(cmd.String("format"))
	if output := cmd.String("output"); output != "" {
		if err := formatter.WriteExport(export, format, output); err != nil {
			return err
		}
		r.logger.Info("library exported", "path", output, "tracks", len(export.Tracks))
		return r.writePlain("✓ %d tracks written to %s\n", len(export.Tracks), output)
	}

	data, err := formatter.Export(export, format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// LibraryExport writes the library as a Markdown directory with the first track's cover.
func (r *Runner) LibraryExport(ctx context.Context, cmd *cli.Command) error {
	export, err := r.libraryExport(ctx, cmd)
	if err != nil {
		return err
	}

	result, err := formatter.WriteMarkdownExport(ctx, export, cmd.String("dir"), func(err error) {
		r.logger.Warn("failed to download cover image", "error", err)
	})
	if err != nil {
		return err
	}

	r.writePlain("✓ Library exported to %s\n", result.Directory)
	for _, f := range result.Files {
		r.writePlain("  %s\n", f)
	}
	return nil
}

func (r *Runner) libraryExport(ctx context.Context, cmd *cli.Command) (*formatter.LibraryExport, error) {
	userID, err := r.userID(cmd)
	if err != nil {
		return nil, err
	}

	d, err := r.openStore()
	if err != nil {
		return nil, err
	}
	defer d.close()

	records, err := d.acquisitions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return formatter.NewLibraryExport(userID, records, d.blobs.PublicURL), nil
}
