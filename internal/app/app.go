// Package app wires the runner components into the make-golden, test and
// compile flows.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/bundle"
	"github.com/ternarybob/vizard/internal/common"
	"github.com/ternarybob/vizard/internal/compare"
	"github.com/ternarybob/vizard/internal/discovery"
	"github.com/ternarybob/vizard/internal/imgdiff"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/scheduler"
	"github.com/ternarybob/vizard/internal/screenshot"
	"github.com/ternarybob/vizard/internal/storage/badger"
)

// EnvironmentProvider acquires one loaded test environment per lane. The
// returned release func frees everything acquired and must always be called.
type EnvironmentProvider func(ctx context.Context) ([]interfaces.TestEnvironment, func(), error)

// App holds the runner components of one invocation
type App struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Resolver *screenshot.Resolver

	// History is nil when run history is disabled
	History interfaces.RunStorage

	environments EnvironmentProvider
	compiler     *bundle.Compiler
	oracle       interfaces.DiffOracle
}

// New creates the app. The run history store is opened when enabled; a
// store that cannot be opened is logged and skipped.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Resolver: screenshot.NewResolver(cfg.OutputPath, cfg.DefaultViewportWidth, cfg.DefaultViewportHeight),
		oracle:   imgdiff.NewOracle(),
		compiler: bundle.NewCompiler(logger, bundle.Options{
			TestFilePath:    cfg.TestFilePath,
			TestFilePattern: cfg.TestFilePattern,
			TmpDir:          cfg.TmpDir,
			Command:         cfg.Bundler.Command,
			RunnerHTML:      cfg.TestRunnerHTML,
		}),
	}
	a.environments = a.browserEnvironments

	if cfg.History.Enabled {
		storage, err := badger.NewRunStorage(logger, cfg.History.Path)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.History.Path).Msg("Run history disabled")
		} else {
			a.History = storage
		}
	}

	return a, nil
}

// WithEnvironments replaces how lane environments are acquired
func (a *App) WithEnvironments(provider EnvironmentProvider) *App {
	a.environments = provider
	return a
}

// WithCompiler replaces the compile step
func (a *App) WithCompiler(compiler *bundle.Compiler) *App {
	a.compiler = compiler
	return a
}

// Close releases the history store
func (a *App) Close() error {
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close run history")
			return err
		}
	}
	return nil
}

// Compile runs the compile step on its own
func (a *App) Compile(ctx context.Context) error {
	_, err := a.compiler.Compile(ctx)
	return err
}

func (a *App) newDiscoverer() *discovery.Discoverer {
	defaults := models.DefaultOptions(a.Config.DefaultViewportWidth, a.Config.DefaultViewportHeight)
	return discovery.NewDiscoverer(a.Logger, defaults, a.goldenExists)
}

func (a *App) goldenExists(p models.Permutation) bool {
	return fileExists(a.Resolver.PermutationPath(models.RoleGolden, p))
}

func (a *App) newScheduler() *scheduler.Scheduler {
	return scheduler.NewScheduler(a.Logger, a.Resolver, scheduler.Options{
		ChunkSize: a.Config.Scheduler.ChunkSize,
		Timeout:   a.Config.ChunkTimeout(),
		Retries:   a.Config.Scheduler.Retries,
	})
}

func (a *App) newComparator() *compare.Comparator {
	return compare.NewComparator(a.Logger, a.oracle, a.Resolver, a.Config.ReportDir, interfaces.DiffOptions{
		Threshold: a.Config.Diff.Threshold,
		IncludeAA: a.Config.Diff.IncludeAA,
	}, 0)
}
