package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/ternarybob/vizard/internal/browser"
	"github.com/ternarybob/vizard/internal/bundle"
	"github.com/ternarybob/vizard/internal/harness"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/server"
)

const serverShutdownTimeout = 10 * time.Second

// browserEnvironments starts the static server and the browser pool, then
// loads the runner page in every lane. Whatever was acquired before a
// failure is released before returning.
func (a *App) browserEnvironments(ctx context.Context) ([]interfaces.TestEnvironment, func(), error) {
	var cleanups []func()
	release := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	site, err := bundle.SiteFor(a.Config.TmpDir, a.Config.TestRunnerHTML)
	if err != nil {
		return nil, release, err
	}
	if a.Config.TestRunnerHTML != "" {
		if err := bundle.ValidateRunnerFile(a.Config.TestRunnerHTML); err != nil {
			return nil, release, err
		}
	}

	srv := server.New(a.Logger, site.Root)
	if err := srv.Start(a.Config.Server.Port); err != nil {
		return nil, release, fmt.Errorf("failed to start static server: %w", err)
	}
	cleanups = append(cleanups, func() {
		ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop static server")
		}
	})

	a.Logger.Info().
		Int("lanes", a.Config.LaneCount()).
		Int("port", srv.Port()).
		Msg("Setting up browser workers")

	workers, err := browser.Launch(ctx, browser.NewWorkerConfig(a.Config), a.Config.LaneCount(), a.Logger)
	if err != nil {
		return nil, release, err
	}
	cleanups = append(cleanups, func() {
		if err := workers.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to shut down browser workers")
		}
	})

	viewport := models.Viewport{Width: a.Config.DefaultViewportWidth, Height: a.Config.DefaultViewportHeight}
	opts := harness.Options{
		LoadRetryInterval: a.Config.Server.LoadRetryInterval.Duration,
		LoadTimeout:       a.Config.Server.LoadTimeout.Duration,
	}
	url := site.URL(srv.URL())

	envs := make([]interfaces.TestEnvironment, len(workers.Workers()))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, worker := range workers.Workers() {
		page := harness.NewPage(a.Logger, worker, viewport, opts)
		envs[i] = page
		p.Go(func(ctx context.Context) error {
			return page.Load(ctx, url)
		})
	}
	if err := p.Wait(); err != nil {
		return nil, release, err
	}

	a.Logger.Info().Str("url", url).Msg("Browser workers ready")
	return envs, release, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
