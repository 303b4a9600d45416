package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/common"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
)

const bindingName = "__vizardBinding"

// bindingShim routes window[name](arg) calls through the single CDP binding
// and settles the returned promise when the host answers via __vizardResolve.
const bindingShim = `(function () {
	if (window.__vizardExpose) { return; }
	var pending = {};
	var seq = 0;
	window.__vizardResolve = function (id, envelope) {
		var call = pending[id];
		if (!call) { return; }
		delete pending[id];
		if (envelope && envelope.error) {
			call.reject(new Error(envelope.error));
		} else {
			call.resolve(envelope ? envelope.result : undefined);
		}
	};
	window.__vizardExpose = function (name) {
		window[name] = function (arg) {
			return new Promise(function (resolve, reject) {
				var id = ++seq;
				pending[id] = {resolve: resolve, reject: reject};
				window.__vizardBinding(JSON.stringify({id: id, name: name, arg: arg === undefined ? null : arg}));
			});
		};
	};
})();`

type bindingCall struct {
	ID   int64           `json:"id"`
	Name string          `json:"name"`
	Arg  json.RawMessage `json:"arg"`
}

// ChromeDPWorker drives one headless Chrome over the DevTools protocol
type ChromeDPWorker struct {
	id      int
	logger  arbor.ILogger
	quality int

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu         sync.RWMutex
	hosts      map[string]interfaces.HostFunction
	pageErrors atomic.Int64
}

var _ interfaces.BrowserWorker = (*ChromeDPWorker)(nil)

// NewChromeDPWorker launches a browser for lane id and checks it responds
func NewChromeDPWorker(ctx context.Context, id int, config WorkerConfig, logger arbor.ILogger) (*ChromeDPWorker, error) {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-setuid-sandbox", config.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(config.Viewport.Width, config.Viewport.Height),
		chromedp.WSURLReadTimeout(config.StartupTimeout),
	)
	if config.ExecutablePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(config.ExecutablePath))
	}

	// The browser outlives the launch ctx; Close releases it
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	w := &ChromeDPWorker{
		id:            id,
		logger:        logger,
		quality:       config.JPEGQuality,
		allocCancel:   allocatorCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		hosts:         make(map[string]interfaces.HostFunction),
	}

	chromedp.ListenTarget(browserCtx, w.onTargetEvent)

	// First Run allocates the browser and must not carry a deadline
	if err := chromedp.Run(browserCtx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(bindingShim).Do(ctx)
			return err
		}),
	); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to start browser for lane %d: %w", id, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, config.StartupTimeout)
	defer cancel()
	if err := w.run(probeCtx,
		chromedp.EmulateViewport(int64(config.Viewport.Width), int64(config.Viewport.Height)),
		chromedp.Navigate("about:blank"),
	); err != nil {
		w.Close()
		return nil, fmt.Errorf("browser for lane %d failed startup test: %w", id, err)
	}

	logger.Debug().
		Int("lane", id).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser instance created and tested successfully")

	return w, nil
}

// run executes actions on the tab, abandoning them when ctx is done.
// Cancelling the derived context never closes the tab itself.
func (w *ChromeDPWorker) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(w.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (w *ChromeDPWorker) onTargetEvent(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventBindingCalled:
		if ev.Name != bindingName {
			return
		}
		var call bindingCall
		if err := json.Unmarshal([]byte(ev.Payload), &call); err != nil {
			w.logger.Warn().Err(err).Int("lane", w.id).Msg("Malformed host function call")
			return
		}
		// Listeners must not block the event loop
		common.SafeGo(w.logger, "host-"+call.Name, func() {
			w.answerBinding(call)
		})

	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			parts = append(parts, remoteObjectText(arg))
		}
		relayConsole(w.logger, w.id, strings.Join(parts, " "))

	case *runtime.EventExceptionThrown:
		w.pageErrors.Add(1)
		w.logger.Error().
			Int("lane", w.id).
			Str("error", ev.ExceptionDetails.Error()).
			Msg("Uncaught page error")
	}
}

func remoteObjectText(arg *runtime.RemoteObject) string {
	if len(arg.Value) > 0 {
		var s string
		if err := json.Unmarshal([]byte(arg.Value), &s); err == nil {
			return s
		}
		return string(arg.Value)
	}
	if arg.Description != "" {
		return arg.Description
	}
	return string(arg.Type)
}

func (w *ChromeDPWorker) answerBinding(call bindingCall) {
	w.mu.RLock()
	fn, ok := w.hosts[call.Name]
	w.mu.RUnlock()

	var envelope hostEnvelope
	if !ok {
		envelope = newEnvelope(nil, fmt.Errorf("host function %q is not exposed", call.Name))
	} else {
		envelope = newEnvelope(fn(w.browserCtx, call.Arg))
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		data, _ = json.Marshal(newEnvelope(nil, err))
	}

	expression := fmt.Sprintf("window.__vizardResolve(%d, %s)", call.ID, data)
	if err := w.run(w.browserCtx, chromedp.Evaluate(expression, nil)); err != nil {
		w.logger.Debug().Err(err).Int("lane", w.id).Str("function", call.Name).Msg("Could not answer host function call")
	}
}

// ID returns the lane index
func (w *ChromeDPWorker) ID() int {
	return w.id
}

func (w *ChromeDPWorker) SetViewport(ctx context.Context, width, height int) error {
	return w.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (w *ChromeDPWorker) Evaluate(ctx context.Context, expression string, result interface{}) error {
	return w.run(ctx, chromedp.Evaluate(expression, result, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

func (w *ChromeDPWorker) ExposeFunction(ctx context.Context, name string, fn interfaces.HostFunction) error {
	w.mu.Lock()
	w.hosts[name] = fn
	w.mu.Unlock()

	nameJSON, _ := json.Marshal(name)
	return w.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(fmt.Sprintf("window.__vizardExpose(%s);", nameJSON)).Do(ctx)
		return err
	}))
}

func (w *ChromeDPWorker) Navigate(ctx context.Context, url string) error {
	return w.run(ctx, chromedp.Navigate(url))
}

func (w *ChromeDPWorker) Reload(ctx context.Context) error {
	return w.run(ctx, chromedp.Reload())
}

func (w *ChromeDPWorker) CaptureRegion(ctx context.Context, clip models.ClipRect) ([]byte, error) {
	var buf []byte
	err := w.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(w.quality)).
			WithClip(&page.Viewport{
				X:      clip.X,
				Y:      clip.Y,
				Width:  clip.Width,
				Height: clip.Height,
				Scale:  1,
			}).
			Do(ctx)
		return err
	}))
	return buf, err
}

func (w *ChromeDPWorker) MoveMouse(ctx context.Context, x, y float64) error {
	return w.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y))
}

// Hover moves the pointer to the centre of the first element matching selector
func (w *ChromeDPWorker) Hover(ctx context.Context, selector string) error {
	selectorJSON, _ := json.Marshal(selector)
	expression := fmt.Sprintf(`(function () {
		var el = document.querySelector(%s);
		if (!el) { throw new Error('No element matches ' + %s); }
		var r = el.getBoundingClientRect();
		return {x: r.x + r.width / 2, y: r.y + r.height / 2};
	})()`, selectorJSON, selectorJSON)

	var point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := w.run(ctx, chromedp.Evaluate(expression, &point)); err != nil {
		return err
	}
	return w.MoveMouse(ctx, point.X, point.Y)
}

func (w *ChromeDPWorker) Click(ctx context.Context, selector string) error {
	return w.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (w *ChromeDPWorker) PageErrors() int64 {
	return w.pageErrors.Load()
}

// Close shuts the browser down
func (w *ChromeDPWorker) Close() error {
	if w.browserCancel != nil {
		w.browserCancel()
	}
	if w.allocCancel != nil {
		w.allocCancel()
	}
	return nil
}
