// Package browser launches and owns the browser workers of a run, one per lane.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/sourcegraph/conc/pool"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/common"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
)

const (
	DriverChromeDP   = "chromedp"
	DriverPlaywright = "playwright"

	// shutdownTimeout bounds how long Shutdown waits for browsers to exit
	shutdownTimeout = 30 * time.Second
)

// WorkerConfig holds the launch settings shared by every worker
type WorkerConfig struct {
	Driver         string
	ExecutablePath string
	Headless       bool
	NoSandbox      bool
	JPEGQuality    int
	StartupTimeout time.Duration
	Viewport       models.Viewport
}

// NewWorkerConfig derives the worker settings from the runner config
func NewWorkerConfig(config *common.Config) WorkerConfig {
	return WorkerConfig{
		Driver:         config.Browser.Driver,
		ExecutablePath: config.Browser.ExecutablePath,
		Headless:       config.Browser.Headless,
		NoSandbox:      config.Browser.NoSandbox,
		JPEGQuality:    config.Browser.JPEGQuality,
		StartupTimeout: config.Browser.StartupTimeout.Duration,
		Viewport: models.Viewport{
			Width:  config.DefaultViewportWidth,
			Height: config.DefaultViewportHeight,
		},
	}
}

// Launcher starts the worker of one lane
type Launcher func(ctx context.Context, lane int) (interfaces.BrowserWorker, error)

// Pool owns one browser worker per lane
type Pool struct {
	logger  arbor.ILogger
	workers []interfaces.BrowserWorker
	release func() error

	mu     sync.Mutex
	closed bool
}

// Launch starts size workers concurrently with the configured driver.
// Either every worker starts or none are left running.
func Launch(ctx context.Context, config WorkerConfig, size int, logger arbor.ILogger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 30 * time.Second
	}

	logger.Info().
		Str("driver", config.Driver).
		Int("pool_size", size).
		Bool("headless", config.Headless).
		Msg("Launching browser pool")

	switch config.Driver {
	case DriverChromeDP, "":
		return LaunchWith(ctx, size, logger, func(ctx context.Context, lane int) (interfaces.BrowserWorker, error) {
			return NewChromeDPWorker(ctx, lane, config, logger)
		}, nil)

	case DriverPlaywright:
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		p, err := LaunchWith(ctx, size, logger, func(ctx context.Context, lane int) (interfaces.BrowserWorker, error) {
			return NewPlaywrightWorker(pw, lane, config, logger)
		}, pw.Stop)
		if err != nil {
			_ = pw.Stop()
			return nil, err
		}
		return p, nil
	}

	return nil, fmt.Errorf("unknown browser driver %q", config.Driver)
}

// LaunchWith starts size workers with launch. release, if set, runs after
// every worker has been closed.
func LaunchWith(ctx context.Context, size int, logger arbor.ILogger, launch Launcher, release func() error) (*Pool, error) {
	startTime := time.Now()
	workers := make([]interfaces.BrowserWorker, size)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for lane := 0; lane < size; lane++ {
		p.Go(func(ctx context.Context) error {
			worker, err := launch(ctx, lane)
			if err != nil {
				return err
			}
			workers[lane] = worker
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		for _, worker := range workers {
			if worker != nil {
				_ = worker.Close()
			}
		}
		return nil, fmt.Errorf("failed to launch browser pool: %w", err)
	}

	logger.Info().
		Int("browsers_created", size).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser pool ready")

	return &Pool{
		logger:  logger,
		workers: workers,
		release: release,
	}, nil
}

// Workers returns the workers, indexed by lane
func (p *Pool) Workers() []interfaces.BrowserWorker {
	return p.workers
}

// Size returns the number of lanes
func (p *Pool) Size() int {
	return len(p.workers)
}

// Shutdown closes every worker. It is safe to call more than once and
// returns after at most 30 seconds even if a browser does not exit.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan error, 1)
	common.SafeGo(p.logger, "browser-shutdown", func() {
		var errs []error
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, worker := range p.workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := worker.Close(); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("lane %d: %w", worker.ID(), err))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if p.release != nil {
			if err := p.release(); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			done <- fmt.Errorf("browser shutdown: %v", errs)
			return
		}
		done <- nil
	})

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			p.logger.Warn().Err(err).Msg("Browser pool shut down with errors")
			return err
		}
		p.logger.Debug().Int("browsers", len(p.workers)).Msg("Browser pool shut down")
		return nil
	case <-timer.C:
		p.logger.Warn().Msg("Timed out waiting for browsers to close")
		return fmt.Errorf("browser shutdown timed out after %s", shutdownTimeout)
	}
}
