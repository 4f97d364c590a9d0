// Package app wires the components of a run together and owns their
// lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagemark/internal/api"
	"github.com/JakeFAU/pagemark/internal/clock/system"
	"github.com/JakeFAU/pagemark/internal/config"
	"github.com/JakeFAU/pagemark/internal/dispatcher"
	"github.com/JakeFAU/pagemark/internal/extract"
	"github.com/JakeFAU/pagemark/internal/id/uuid"
	"github.com/JakeFAU/pagemark/internal/pipeline"
	"github.com/JakeFAU/pagemark/internal/render"
	"github.com/JakeFAU/pagemark/internal/report"
	"github.com/JakeFAU/pagemark/internal/sanitize"
	"github.com/JakeFAU/pagemark/internal/storage/local"
	"github.com/JakeFAU/pagemark/internal/transform"
)

// ErrRunFailed is returned when at least one item did not succeed.
var ErrRunFailed = errors.New("one or more items failed")

// App holds the services shared by one run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	fs       afero.Fs
	renderer extract.Renderer
	sleeper  extract.Sleeper
	ids      extract.IDGenerator
	out      io.Writer
}

// Option customizes an App.
type Option func(*App)

// WithFs swaps the filesystem used for artifacts and the summary file.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithRenderer swaps the browser renderer.
func WithRenderer(r extract.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithSleeper swaps the backoff sleeper.
func WithSleeper(s extract.Sleeper) Option {
	return func(a *App) { a.sleeper = s }
}

// WithIDGenerator swaps the run ID source.
func WithIDGenerator(g extract.IDGenerator) Option {
	return func(a *App) { a.ids = g }
}

// WithOutput sets where the summary banner is printed.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// New creates an App for cfg.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		fs:      afero.NewOsFs(),
		sleeper: system.New(),
		ids:     uuid.New(),
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.renderer == nil {
		a.renderer = render.NewChromedp(cfg.Render.Config, logger.Named("render"))
	}
	return a
}

// Run processes every configured target, prints the banner and writes the
// optional summary file. The report is returned even when ErrRunFailed is.
func (a *App) Run(ctx context.Context) (*report.Report, error) {
	store, err := local.New(a.cfg.Output, local.WithFs(a.fs))
	if err != nil {
		return nil, fmt.Errorf("prepare output directory: %w", err)
	}
	a.logger.Info("output directory ready", zap.String("path", store.Root()))

	var srv *api.Server
	if a.cfg.Metrics.Addr != "" {
		srv = api.NewServer(a.logger.Named("api"))
		if _, err := srv.Start(a.cfg.Metrics.Addr); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
				a.logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	pipe := pipeline.New(pipeline.Deps{
		Renderer:    a.renderer,
		Sanitizer:   sanitize.New(a.logger.Named("sanitize")),
		Transformer: transform.NewMarkdown(a.logger.Named("transform")),
		Persister:   store,
		Policy:      pipeline.NewExponentialRetryPolicy(a.cfg.Pipeline.MaxRetries, a.cfg.Pipeline.BackoffBase),
		Sleeper:     a.sleeper,
	}, a.cfg.Render.Timeout, a.logger.Named("pipeline"))

	d, err := dispatcher.New(pipe, a.cfg.Pipeline.Concurrency,
		dispatcher.WithIDGenerator(a.ids),
		dispatcher.WithLogger(a.logger.Named("dispatcher")),
	)
	if err != nil {
		return nil, err
	}

	if srv != nil {
		srv.SetReady(true)
	}
	a.logger.Info("processing targets",
		zap.Int("targets", len(a.cfg.Targets)),
		zap.Int("workers", a.cfg.Pipeline.Concurrency),
	)
	rep := d.Run(ctx, a.cfg.Targets)

	if err := rep.WriteBanner(a.out); err != nil {
		a.logger.Warn("print summary failed", zap.Error(err))
	}
	if a.cfg.Summary.File != "" {
		if err := rep.WriteFile(a.fs, a.cfg.Summary.File, a.cfg.Summary.Format); err != nil {
			return rep, extract.IOError(fmt.Errorf("write summary: %w", err))
		}
		a.logger.Info("summary written", zap.String("path", a.cfg.Summary.File))
	}

	if !rep.OK() {
		return rep, fmt.Errorf("%w: %d of %d", ErrRunFailed, rep.Failed, rep.Total)
	}
	return rep, nil
}
