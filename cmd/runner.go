package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stash/internal/blob"
	"github.com/desertthunder/stash/internal/repositories"
	"github.com/desertthunder/stash/internal/services"
	"github.com/desertthunder/stash/internal/shared"
	"github.com/desertthunder/stash/internal/tasks"
	"github.com/urfave/cli/v3"
)

// mirrorQueueSize bounds the pending catalog mirror writes per process.
const mirrorQueueSize = 64

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, acquireCommand, libraryCommand, serveCommand, playerCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the configuration named by the root --config flag. Runs before every command.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := shared.ResolveConfig(path)
	if err != nil {
		return ctx, err
	}

	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	r.config = config
	r.configPath = path
	return ctx, nil
}

// userID returns the --user flag when set, otherwise the configured user.
func (r *Runner) userID(cmd *cli.Command) (string, error) {
	if id := cmd.String("user"); id != "" {
		return id, nil
	}
	if r.config.User.ID != "" {
		return r.config.User.ID, nil
	}
	return "", fmt.Errorf("%w: no user configured, run 'stash auth login' first", shared.ErrNotAuthenticated)
}

// deps is the object graph shared by the commands that touch storage or the catalog.
type deps struct {
	db           *sql.DB
	credentials  *repositories.CredentialRepository
	acquisitions *repositories.AcquisitionRepository
	tracks       *repositories.TrackRepository
	catalog      *services.CatalogService
	tokens       *services.CredentialManager
	userCatalog  *services.UserCatalog
	cache        *services.TrackCache
	blobs        *blob.FileStore
	mirror       *tasks.Mirror
	pipeline     *tasks.Pipeline
}

// openStore opens the database and blob store only. Enough for commands that read the library.
func (r *Runner) openStore() (*deps, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}

	d := &deps{
		db:           db,
		credentials:  repositories.NewCredentialRepository(db),
		acquisitions: repositories.NewAcquisitionRepository(db),
		tracks:       repositories.NewTrackRepository(db),
	}

	d.blobs, err = blob.NewFileStore(r.config.Storage.Root, r.config.Storage.PublicBaseURL)
	if err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

// open builds the full dependency graph from the runner's config. Callers must close the result.
func (r *Runner) open(ctx context.Context) (*deps, error) {
	d, err := r.openStore()
	if err != nil {
		return nil, err
	}

	d.catalog, err = services.NewCatalogService(r.config.Credentials.Spotify.Map(), r.httpClient)
	if err != nil {
		d.close()
		return nil, err
	}

	d.cache, err = services.NewTrackCache(ctx, r.config.Cache.RedisURL, r.config.Cache.TTL, r.logger)
	if err != nil {
		r.logger.Warn("track cache disabled", "error", err)
		d.cache = nil
	}

	d.tokens = services.NewCredentialManager(d.credentials, d.catalog, r.logger)
	d.userCatalog = services.NewUserCatalog(d.tokens, d.catalog, d.cache)
	d.mirror = tasks.NewMirror(repositories.NewTrackCacheAdapter(d.tracks), mirrorQueueSize, r.logger)

	converter := services.NewConverterService(r.config.Converter, nil)
	d.pipeline = tasks.NewPipeline(d.acquisitions, converter, d.blobs, r.logger)
	d.pipeline.SetCatalog(d.userCatalog)
	d.pipeline.SetMirror(d.mirror)

	return d, nil
}

func (d *deps) close() {
	if d.mirror != nil {
		d.mirror.Close()
	}
	if d.cache != nil {
		d.cache.Close()
	}
	d.db.Close()
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
