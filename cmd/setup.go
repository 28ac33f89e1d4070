package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/desertthunder/stash/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
//
// When the config file is missing it is created from the template first.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else if config, err := shared.ResolveConfig(r.configPath); err == nil {
			r.config = config
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupConfig writes the config template to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}

	r.writePlain("✓ Config written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret (or STASH_SPOTIFY_CLIENT_ID / STASH_SPOTIFY_CLIENT_SECRET)\n")
	r.writePlain("2. Set converter.api_key and server.session_secret\n")
	r.writePlain("3. Run 'stash auth login'\n")
	return nil
}

// SetupStatus lists every migration with its applied state.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	return r.withDatabase(func(db *sql.DB) error {
		statuses, err := shared.MigrationStatuses(db)
		if err != nil {
			return err
		}

		r.writePlainHeader("Migrations")
		for _, s := range statuses {
			mark := "✗"
			if s.Applied {
				mark = "✓"
			}
			r.writePlain("%s %04d %s\n", mark, s.Version, s.Name)
		}
		return nil
	})
}

// SetupRollback rolls back the most recently applied migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	return r.withDatabase(func(db *sql.DB) error {
		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
		r.logger.Warn("rolled back latest migration", "database", r.config.Database.Path)
		return r.writePlain("✓ Rolled back latest migration\n")
	})
}

// withDatabase opens the configured database without migrating it.
func (r *Runner) withDatabase(fn func(db *sql.DB) error) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(db)
}
