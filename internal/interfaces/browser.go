package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/vizard/internal/models"
)

// HostFunction is a host-side callback the page can invoke.
// The payload is the JSON-encoded single argument passed from the page;
// the returned value is JSON-encoded back to the page.
type HostFunction func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// BrowserWorker - one browser page driven by an automation binding.
// A worker is owned by exactly one lane for the duration of a run.
type BrowserWorker interface {
	// ID returns the lane index the worker was launched for
	ID() int

	SetViewport(ctx context.Context, width, height int) error

	// Evaluate runs expression in the page's global context, awaiting a
	// returned promise. result may be nil to discard the value.
	Evaluate(ctx context.Context, expression string, result interface{}) error

	// ExposeFunction makes fn callable from the page as window[name](arg).
	// Must be called before Navigate.
	ExposeFunction(ctx context.Context, name string, fn HostFunction) error

	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	// CaptureRegion returns JPEG bytes of the clip region
	CaptureRegion(ctx context.Context, clip models.ClipRect) ([]byte, error)

	MoveMouse(ctx context.Context, x, y float64) error
	Hover(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error

	// PageErrors returns the number of uncaught page errors seen so far
	PageErrors() int64

	Close() error
}
