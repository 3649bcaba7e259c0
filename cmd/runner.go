package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vmx/internal/repositories"
	"github.com/desertthunder/vmx/internal/services"
	"github.com/desertthunder/vmx/internal/shared"
	"github.com/desertthunder/vmx/internal/tasks"
	"github.com/gofrs/flock"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	catalog    services.Catalog
	catalogErr error
	fetcher    services.Fetcher
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	getenv     func(string) string
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from ConfigPath before the first command runs. A nil Catalog
// is built from the loaded config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    services.Catalog
	Fetcher    services.Fetcher
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Getenv     func(string) string
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Fetcher == nil {
		opts.Fetcher = services.NewHTTPFetcher(opts.HTTPClient)
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		fetcher:    opts.Fetcher,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		getenv:     opts.Getenv,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, downloadCommand, tuiCommand, refreshCommand, listCommand, resetCommand,
		sweepCommand, compareCommand, reconcileCommand, catalogCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads configuration and builds the catalog client ahead of any command.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if err := r.loadConfig(); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// loadConfig reads the config file when present, then applies environment overrides
// and resolves defaults. An explicitly provided config skips the file.
func (r *Runner) loadConfig() error {
	if r.config == nil {
		r.config = shared.DefaultConfig()
		if r.configPath != "" {
			if _, err := os.Stat(r.configPath); err == nil {
				config, err := shared.LoadConfig(r.configPath)
				if err != nil {
					return err
				}
				r.config = config
			} else {
				r.logger.Debug("config file not found, using defaults", "path", r.configPath)
			}
		}
	}

	if err := r.config.ApplyEnv(r.getenv); err != nil {
		return err
	}
	if err := r.config.Resolve(); err != nil {
		return err
	}

	if r.catalog == nil {
		svc, err := services.NewVimeoService(r.config.Catalog, r.httpClient)
		if err != nil {
			r.catalogErr = err
			r.logger.Debug("catalog unavailable", "error", err)
		} else {
			r.catalog = svc
		}
	}

	return nil
}

// requireCatalog reports why the catalog client could not be built, if it could not.
func (r *Runner) requireCatalog() error {
	if r.catalog != nil {
		return nil
	}
	if r.catalogErr != nil {
		return fmt.Errorf("%w (set %s or catalog.access_token)", r.catalogErr, shared.EnvAccessToken)
	}
	return fmt.Errorf("%w: catalog not configured", shared.ErrServiceUnavailable)
}

// session is an open ledger with an engine bound to it.
type session struct {
	db     *sql.DB
	lock   *flock.Flock
	repo   *repositories.ItemRepository
	engine *tasks.Engine
}

// openSession opens and migrates the ledger under its process lock.
func (r *Runner) openSession() (*session, error) {
	return r.open(true)
}

// openReader opens the ledger without taking the lock, for commands that only read.
func (r *Runner) openReader() (*session, error) {
	return r.open(false)
}

func (r *Runner) open(locked bool) (*session, error) {
	path := r.config.Ledger.Path

	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Ledger.MaxOpenConns)

	var lock *flock.Flock
	if locked {
		if lock, err = shared.AcquireLock(path); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &session{db: db, lock: lock}
	if err := shared.RunMigrations(db); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s.repo = repositories.NewItemRepository(db)
	s.engine = tasks.NewEngine(s.repo, r.catalog, r.fetcher, r.logger, tasks.OptionsFromConfig(r.config.Download))

	r.logger.Debug("ledger opened", "path", path, "locked", locked)
	return s, nil
}

// Close releases the lock, if held, and closes the database.
func (s *session) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		err = errors.Join(err, s.lock.Unlock())
	}
	return err
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
