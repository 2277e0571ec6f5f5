package di

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/gatechain/internal/app"
	appconfig "github.com/YoshitsuguKoike/gatechain/internal/app/config"
	"github.com/YoshitsuguKoike/gatechain/internal/application/pipeline"
	"github.com/YoshitsuguKoike/gatechain/internal/application/port/output"
	"github.com/YoshitsuguKoike/gatechain/internal/application/session"
	"github.com/YoshitsuguKoike/gatechain/internal/application/verify"
	"github.com/YoshitsuguKoike/gatechain/internal/domain/gate"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/catalog"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/history"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/metrics"
	"github.com/YoshitsuguKoike/gatechain/internal/infra/results"
	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// Container holds every wired dependency of one gatechain process
type Container struct {
	// Infrastructure
	fs      afero.Fs
	paths   app.Paths
	results output.StepResultStore
	closer  io.Closer
	catalog *catalog.Catalog
	history *history.Journal
	metrics *metrics.Collector
	wait    *verify.WaitStateFile
	runner  verify.CommandRunner

	// Application
	store  *session.Store
	loop   *verify.Loop
	engine *pipeline.Engine

	config Config
	logger logging.Logger
}

// Config holds configuration for the container
type Config struct {
	App    appconfig.Config
	Fs     afero.Fs             // defaults to the OS filesystem
	Runner verify.CommandRunner // defaults to ExecRunner
	Logger logging.Logger       // defaults to the global logger
	// RuntimeMetrics adds Go runtime and process collectors to the registry
	RuntimeMetrics bool
}

// NewContainer creates and initializes the DI container
func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("container needs application config")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Runner == nil {
		cfg.Runner = verify.NewExecRunner()
	}
	c := &Container{
		config: cfg,
		fs:     cfg.Fs,
		runner: cfg.Runner,
		paths:  app.PathsFor(cfg.App.Home()),
		logger: logging.OrGlobal(cfg.Logger),
	}

	if err := c.initializeInfrastructure(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	if err := c.initializeApplication(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return c, nil
}

func (c *Container) initializeInfrastructure(ctx context.Context) error {
	cfg := c.config.App

	for _, dir := range []string{c.paths.Var, c.paths.RuntimeState} {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	c.metrics = metrics.NewCollector(c.config.RuntimeMetrics)

	switch cfg.ResultsBackend() {
	case "", "file":
		c.results = results.NewFileStore(c.fs, c.paths.Results)
	case "sqlite":
		// go-sqlite3 opens through the OS, so the directory must exist there too
		if err := os.MkdirAll(filepath.Dir(c.paths.ResultsDB), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		store, err := results.OpenSQLite(ctx, c.paths.ResultsDB)
		if err != nil {
			return err
		}
		c.results, c.closer = store, store
	case "s3":
		store, err := results.NewS3Store(ctx, results.S3Config{
			Bucket: cfg.S3Bucket(),
			Prefix: cfg.S3Prefix(),
			Region: cfg.S3Region(),
		})
		if err != nil {
			return err
		}
		c.results = store
	default:
		return fmt.Errorf("unknown results backend: %s", cfg.ResultsBackend())
	}

	catalogPath := cfg.Catalog()
	if catalogPath == "" {
		catalogPath = c.paths.Catalog
	}
	c.catalog = catalog.New(c.fs, catalogPath, c.logger)
	if err := c.catalog.Reload(); err != nil {
		return err
	}

	c.history = history.NewJournal(c.fs, c.paths.History, c.logger)
	c.wait = verify.NewWaitStateFile(c.fs, c.paths.WaitState)
	return nil
}

func (c *Container) initializeApplication() error {
	cfg := c.config.App

	c.store = session.NewStore(session.Options{
		Fs:                   c.fs,
		Path:                 c.paths.RunRegistry,
		Results:              c.results,
		History:              c.history,
		Metrics:              c.metrics,
		Logger:               c.logger,
		MaxRunHistory:        cfg.MaxRunHistory(),
		SessionTimeout:       cfg.SessionTimeout(),
		ReviewSessionTimeout: cfg.ReviewSessionTimeout(),
		CleanupInterval:      cfg.CleanupInterval(),
	})
	if err := c.store.Load(); err != nil {
		return err
	}

	c.loop = verify.NewLoop(c.store, c.runner, c.logger,
		verify.WithCheckpointer(verify.NewGitCheckpointer()),
		verify.WithWaitState(c.wait),
		verify.WithMetrics(c.metrics),
	)

	c.engine = pipeline.NewEngine(pipeline.Deps{
		Store:    c.store,
		Catalog:  c.catalog,
		Renderer: catalog.Renderer{},
		Results:  c.results,
		History:  c.history,
		Loop:     c.loop,
		Metrics:  c.metrics,
		Logger:   c.logger,
	}, pipeline.Config{
		GateMode:           gate.EnforcementMode(cfg.GateMode()),
		GateMaxAttempts:    cfg.GateMaxAttempts(),
		VerifyTimeout:      cfg.VerifyTimeout(),
		VerifyMaxAttempts:  cfg.VerifyMaxAttempts(),
		ActiveSessionLimit: cfg.ActiveSessionLimit(),
	})
	return nil
}

// Start begins background session cleanup
func (c *Container) Start() {
	c.store.StartCleanup()
}

// Close stops background work, flushes the run registry and releases the
// results backend
func (c *Container) Close() error {
	if c.store != nil {
		c.store.Cleanup()
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *Container) Fs() afero.Fs                     { return c.fs }
func (c *Container) Engine() *pipeline.Engine         { return c.engine }
func (c *Container) Store() *session.Store            { return c.store }
func (c *Container) Catalog() *catalog.Catalog        { return c.catalog }
func (c *Container) History() *history.Journal        { return c.history }
func (c *Container) Metrics() *metrics.Collector      { return c.metrics }
func (c *Container) Results() output.StepResultStore  { return c.results }
func (c *Container) WaitState() *verify.WaitStateFile { return c.wait }
func (c *Container) Runner() verify.CommandRunner     { return c.runner }
func (c *Container) Paths() app.Paths                 { return c.paths }
func (c *Container) AppConfig() appconfig.Config      { return c.config.App }
func (c *Container) Logger() logging.Logger           { return c.logger }
