// Package harness drives the in-page test environment of one browser worker.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/scheduler"
)

// Host functions exposed to the page. The puppeteer* names keep older test
// files working.
const (
	FnTakeScreenshot = "takeScreenshot"
	FnResetMouse     = "resetMouse"
	FnHover          = "vizardHover"
	FnClick          = "vizardClick"
	FnLegacyHover    = "puppeteerHover"
	FnLegacyClick    = "puppeteerClick"
)

// Options controls how a page is loaded
type Options struct {
	LoadRetryInterval time.Duration
	LoadTimeout       time.Duration
}

// Page is the in-page test environment of one lane
type Page struct {
	logger arbor.ILogger
	worker interfaces.BrowserWorker
	opts   Options

	mu       sync.Mutex
	viewport models.Viewport

	// attempt numbers RunTests calls. Screenshot requests carry it back so
	// a write failure is charged to the batch that issued it.
	attempt     uint64
	writeErrors []error
}

var _ interfaces.TestEnvironment = (*Page)(nil)

// screenshotRequest is the argument of window.takeScreenshot
type screenshotRequest struct {
	TargetRect           models.ClipRect `json:"targetRect"`
	ScreenshotOutputPath string          `json:"screenshotOutputPath"`
	Attempt              uint64          `json:"attempt"`
}

// runRequest is the argument of window._runTests
type runRequest struct {
	Tests   []models.ScheduledTest `json:"tests"`
	Attempt uint64                 `json:"attempt"`
}

// NewPage wraps a worker. viewport is the worker's initial viewport.
func NewPage(logger arbor.ILogger, worker interfaces.BrowserWorker, viewport models.Viewport, opts Options) *Page {
	if opts.LoadRetryInterval <= 0 {
		opts.LoadRetryInterval = 500 * time.Millisecond
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 30 * time.Second
	}
	return &Page{
		logger:   logger,
		worker:   worker,
		opts:     opts,
		viewport: viewport,
	}
}

// Lane returns the lane index of the underlying worker
func (p *Page) Lane() int {
	return p.worker.ID()
}

// Load exposes the host functions, opens url (retrying until the server
// answers) and waits for the runtime to come up.
func (p *Page) Load(ctx context.Context, url string) error {
	hostFunctions := map[string]interfaces.HostFunction{
		FnTakeScreenshot: p.takeScreenshot,
		FnResetMouse:     p.resetMouse,
		FnHover:          p.hover,
		FnClick:          p.click,
		FnLegacyHover:    p.hover,
		FnLegacyClick:    p.click,
	}
	for name, fn := range hostFunctions {
		if err := p.worker.ExposeFunction(ctx, name, fn); err != nil {
			return fmt.Errorf("failed to expose %s: %w", name, err)
		}
	}

	loadCtx, cancel := context.WithTimeout(ctx, p.opts.LoadTimeout)
	defer cancel()

	if err := p.navigate(loadCtx, url); err != nil {
		return err
	}
	if err := p.waitForRuntime(loadCtx); err != nil {
		return err
	}

	if errs := p.worker.PageErrors(); errs > 0 {
		return fmt.Errorf("%d errors occurred while loading the test bundle, see the page log above", errs)
	}

	p.logger.Debug().Int("lane", p.Lane()).Str("url", url).Msg("Test page loaded")
	return nil
}

func (p *Page) navigate(ctx context.Context, url string) error {
	ticker := time.NewTicker(p.opts.LoadRetryInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		err := p.worker.Navigate(ctx, url)
		if err == nil {
			return nil
		}

		p.logger.Debug().Err(err).Int("lane", p.Lane()).Int("attempt", attempts).Msg("Test page not reachable yet")

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to load %s after %d attempts: %w", url, attempts, err)
		case <-ticker.C:
		}
	}
}

// waitForRuntime polls until window._registerTests is defined
func (p *Page) waitForRuntime(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.LoadRetryInterval / 5)
	defer ticker.Stop()

	for {
		var ready bool
		err := p.worker.Evaluate(ctx, "typeof window._registerTests === 'function'", &ready)
		if err == nil && ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("test runtime did not load: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Register runs the page's registration entry point
func (p *Page) Register(ctx context.Context) error {
	return p.worker.Evaluate(ctx, "window._registerTests()", nil)
}

// Suites returns the registered suites
func (p *Page) Suites(ctx context.Context) ([]models.RegisteredSuite, error) {
	var suites []models.RegisteredSuite
	if err := p.worker.Evaluate(ctx, "window._getSuites()", &suites); err != nil {
		return nil, err
	}
	return suites, nil
}

// Tests returns the registered tests
func (p *Page) Tests(ctx context.Context) ([]models.RegisteredTest, error) {
	var tests []models.RegisteredTest
	if err := p.worker.Evaluate(ctx, "window._getTests()", &tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// SetViewport resizes the page and remembers the size for clip clamping
func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	if err := p.worker.SetViewport(ctx, width, height); err != nil {
		return err
	}
	p.mu.Lock()
	p.viewport = models.Viewport{Width: width, Height: height}
	p.mu.Unlock()
	return nil
}

// RunTests runs one batch in the page. A screenshot of this batch that
// could not be written wins over any error the page reported.
func (p *Page) RunTests(ctx context.Context, tests []models.ScheduledTest) error {
	p.mu.Lock()
	p.attempt++
	attempt := p.attempt
	p.writeErrors = nil
	p.mu.Unlock()

	payload, err := json.Marshal(runRequest{Tests: tests, Attempt: attempt})
	if err != nil {
		return fmt.Errorf("failed to encode tests: %w", err)
	}

	runErr := p.worker.Evaluate(ctx, fmt.Sprintf("window._runTests(%s)", payload), nil)

	p.mu.Lock()
	var writeErr error
	if p.attempt == attempt && len(p.writeErrors) > 0 {
		writeErr = p.writeErrors[0]
	}
	p.mu.Unlock()
	if writeErr != nil {
		return writeErr
	}
	return runErr
}

// Reset reloads the page and re-registers its tests
func (p *Page) Reset(ctx context.Context) error {
	resetCtx, cancel := context.WithTimeout(ctx, p.opts.LoadTimeout)
	defer cancel()

	if err := p.worker.Reload(resetCtx); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	if err := p.waitForRuntime(resetCtx); err != nil {
		return err
	}
	return p.Register(resetCtx)
}

func (p *Page) takeScreenshot(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	var req screenshotRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("invalid takeScreenshot argument: %w", err)
	}
	if req.ScreenshotOutputPath == "" {
		return nil, fmt.Errorf("takeScreenshot called without screenshotOutputPath")
	}

	p.mu.Lock()
	clip := req.TargetRect.ClampTo(p.viewport)
	p.mu.Unlock()

	data, err := p.worker.CaptureRegion(ctx, clip)
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", req.ScreenshotOutputPath, err)
	}

	if err := writeArtifact(req.ScreenshotOutputPath, data); err != nil {
		writeErr := &scheduler.ArtifactWriteError{Path: req.ScreenshotOutputPath, Err: err}
		p.mu.Lock()
		current := req.Attempt == p.attempt
		if current {
			p.writeErrors = append(p.writeErrors, writeErr)
		}
		p.mu.Unlock()
		if !current {
			p.logger.Warn().
				Err(writeErr).
				Int64("attempt", int64(req.Attempt)).
				Msg("Screenshot write failed for an abandoned batch")
		}
		return nil, writeErr
	}

	p.logger.Debug().
		Str("path", req.ScreenshotOutputPath).
		Int("bytes", len(data)).
		Msg("Screenshot written")
	return nil, nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (p *Page) resetMouse(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	return nil, p.worker.MoveMouse(ctx, 0, 0)
}

func (p *Page) hover(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	selector, err := selectorArg(payload)
	if err != nil {
		return nil, err
	}
	return nil, p.worker.Hover(ctx, selector)
}

func (p *Page) click(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	selector, err := selectorArg(payload)
	if err != nil {
		return nil, err
	}
	return nil, p.worker.Click(ctx, selector)
}

func selectorArg(payload json.RawMessage) (string, error) {
	var selector string
	if err := json.Unmarshal(payload, &selector); err != nil || selector == "" {
		return "", fmt.Errorf("expected a CSS selector, got %s", string(payload))
	}
	return selector, nil
}
