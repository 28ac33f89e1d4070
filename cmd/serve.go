package main

import (
	"context"

	"github.com/desertthunder/stash/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP API until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	d, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	srv, err := server.New(server.Deps{
		Config:      r.config,
		Authorizer:  d.catalog,
		Credentials: d.credentials,
		Tokens:      d.tokens,
		Library:     d.acquisitions,
		Tracks:      d.userCatalog,
		Acquirer:    d.pipeline,
		Media:       d.blobs,
		Logger:      r.logger,
	})
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	err = server.ListenAndServe(ctx, addr, srv, r.logger)
	if dropped := d.mirror.Dropped(); dropped > 0 {
		r.logger.Warn("catalog mirror dropped tracks", "count", dropped)
	}
	return err
}
