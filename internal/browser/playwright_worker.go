package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
)

// hostPrefix names the raw playwright binding behind each exposed function
const hostPrefix = "__vizardHost_"

// envelopeUnwrap defines window[name] over the raw binding so host errors reject
const envelopeUnwrap = `(function (name) {
	window[name] = async function (arg) {
		var envelope = await window[%q + name](arg === undefined ? null : arg);
		if (envelope && envelope.error) { throw new Error(envelope.error); }
		return envelope ? envelope.result : undefined;
	};
})(%s);`

// PlaywrightWorker drives one Chromium page through playwright
type PlaywrightWorker struct {
	id      int
	logger  arbor.ILogger
	quality int

	browser    playwright.Browser
	page       playwright.Page
	pageErrors atomic.Int64
}

var _ interfaces.BrowserWorker = (*PlaywrightWorker)(nil)

// NewPlaywrightWorker launches a browser for lane id on a running playwright driver
func NewPlaywrightWorker(pw *playwright.Playwright, id int, config WorkerConfig, logger arbor.ILogger) (*PlaywrightWorker, error) {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(config.Headless),
	}
	if config.ExecutablePath != "" {
		launchOpts.ExecutablePath = playwright.String(config.ExecutablePath)
	}
	if config.NoSandbox {
		launchOpts.Args = []string{"--no-sandbox", "--disable-setuid-sandbox"}
	}
	if config.StartupTimeout > 0 {
		launchOpts.Timeout = playwright.Float(float64(config.StartupTimeout.Milliseconds()))
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser for lane %d: %w", id, err)
	}

	page, err := browser.NewPage()
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to open page for lane %d: %w", id, err)
	}

	w := &PlaywrightWorker{
		id:      id,
		logger:  logger,
		quality: config.JPEGQuality,
		browser: browser,
		page:    page,
	}

	page.OnConsole(func(msg playwright.ConsoleMessage) {
		relayConsole(logger, id, msg.Text())
	})
	page.OnPageError(func(err error) {
		w.pageErrors.Add(1)
		logger.Error().Err(err).Int("lane", id).Msg("Uncaught page error")
	})

	if err := page.SetViewportSize(config.Viewport.Width, config.Viewport.Height); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to size page for lane %d: %w", id, err)
	}

	return w, nil
}

// await runs fn in the background and gives up waiting when ctx is done.
// playwright calls cannot be interrupted; an abandoned call finishes on its own.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn()
		done <- outcome{value, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func awaitErr(ctx context.Context, fn func() error) error {
	_, err := await(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (w *PlaywrightWorker) ID() int {
	return w.id
}

func (w *PlaywrightWorker) SetViewport(ctx context.Context, width, height int) error {
	return awaitErr(ctx, func() error {
		return w.page.SetViewportSize(width, height)
	})
}

func (w *PlaywrightWorker) Evaluate(ctx context.Context, expression string, result interface{}) error {
	value, err := await(ctx, func() (interface{}, error) {
		return w.page.Evaluate(expression)
	})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return json.Unmarshal(data, result)
}

func (w *PlaywrightWorker) ExposeFunction(ctx context.Context, name string, fn interfaces.HostFunction) error {
	binding := func(args ...interface{}) interface{} {
		var arg interface{}
		if len(args) > 0 {
			arg = args[0]
		}
		payload, err := json.Marshal(arg)
		if err != nil {
			return newEnvelope(nil, err)
		}
		result, err := fn(context.Background(), payload)
		envelope := newEnvelope(result, err)

		// Return plain JSON values so playwright can serialise them
		var plain interface{}
		data, _ := json.Marshal(envelope)
		_ = json.Unmarshal(data, &plain)
		return plain
	}

	nameJSON, _ := json.Marshal(name)
	script := fmt.Sprintf(envelopeUnwrap, hostPrefix, nameJSON)

	return awaitErr(ctx, func() error {
		if err := w.page.ExposeFunction(hostPrefix+name, binding); err != nil {
			return err
		}
		return w.page.AddInitScript(playwright.Script{Content: playwright.String(script)})
	})
}

func (w *PlaywrightWorker) Navigate(ctx context.Context, url string) error {
	_, err := await(ctx, func() (playwright.Response, error) {
		return w.page.Goto(url)
	})
	return err
}

func (w *PlaywrightWorker) Reload(ctx context.Context) error {
	_, err := await(ctx, func() (playwright.Response, error) {
		return w.page.Reload()
	})
	return err
}

func (w *PlaywrightWorker) CaptureRegion(ctx context.Context, clip models.ClipRect) ([]byte, error) {
	return await(ctx, func() ([]byte, error) {
		return w.page.Screenshot(playwright.PageScreenshotOptions{
			Type:    playwright.ScreenshotTypeJpeg,
			Quality: playwright.Int(w.quality),
			Clip: &playwright.Rect{
				X:      clip.X,
				Y:      clip.Y,
				Width:  clip.Width,
				Height: clip.Height,
			},
		})
	})
}

func (w *PlaywrightWorker) MoveMouse(ctx context.Context, x, y float64) error {
	return awaitErr(ctx, func() error {
		return w.page.Mouse().Move(x, y)
	})
}

func (w *PlaywrightWorker) Hover(ctx context.Context, selector string) error {
	return awaitErr(ctx, func() error {
		return w.page.Hover(selector)
	})
}

func (w *PlaywrightWorker) Click(ctx context.Context, selector string) error {
	return awaitErr(ctx, func() error {
		return w.page.Click(selector)
	})
}

func (w *PlaywrightWorker) PageErrors() int64 {
	return w.pageErrors.Load()
}

func (w *PlaywrightWorker) Close() error {
	return w.browser.Close()
}
