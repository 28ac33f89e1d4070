// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "User id to act for (default: user.id from config)",
	}
}

// setupCommand handles setup operations for the database and config file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config.toml template",
				Action: r.SetupConfig,
			},
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles catalog authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize with Spotify using OAuth2 and store the credential",
				Action: r.AuthLogin,
			},
			{
				Name:  "token",
				Usage: "Print a usable access token, refreshing it when stale",
				Flags: []cli.Flag{
					userFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthToken,
			},
			{
				Name:   "status",
				Usage:  "Show the stored credential for a user",
				Flags:  []cli.Flag{userFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// acquireCommand converts and stores tracks
func acquireCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "acquire",
		Aliases:   []string{"get"},
		Usage:     "Convert a catalog track and store its audio",
		ArgsUsage: "<track-id>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "track-id"},
		},
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{
				Name:  "url",
				Usage: "Catalog URL of the track, used when no track id is given",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Acquire,
		Commands: []*cli.Command{
			{
				Name:  "liked",
				Usage: "Acquire the user's saved tracks",
				Flags: []cli.Flag{
					userFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of saved tracks (0 for all)",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent acquisitions",
						Value: 3,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Acquisitions started per second",
						Value: 2,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON summary",
					},
				},
				Action: r.AcquireLiked,
			},
		},
	}
}

// libraryCommand lists and exports acquisitions
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Inspect acquired tracks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List acquired tracks",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (json, csv, markdown, txt)",
						Value:   "txt",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to file instead of stdout",
					},
				},
				Action: r.LibraryList,
			},
			{
				Name:  "export",
				Usage: "Export the library as a Markdown directory with cover art",
				Flags: []cli.Flag{
					userFlag(),
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Output directory (default: <user>_library)",
					},
				},
				Action: r.LibraryExport,
			},
		},
	}
}

// serveCommand runs the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// playerCommand returns the top-level TUI command for playing the library.
func playerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "player",
		Aliases: []string{"play", "tui"},
		Usage:   "Launch the interactive library player",
		Flags:   []cli.Flag{userFlag()},
		Action:  r.Player,
	}
}
