package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// Option keys understood by the runner. Any other key is carried through
// to the page untouched.
const (
	OptionViewportWidths  = "viewportWidths"
	OptionViewportHeights = "viewportHeights"
)

// TestOptions is the merged option bag of a suite or test
type TestOptions map[string]interface{}

// DefaultOptions returns the built-in option layer for the given default viewport
func DefaultOptions(width, height int) TestOptions {
	return TestOptions{
		OptionViewportWidths:  []int{width},
		OptionViewportHeights: []int{height},
	}
}

// MergeOptions merges option layers; later layers win key by key
func MergeOptions(layers ...TestOptions) TestOptions {
	merged := TestOptions{}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// ViewportWidths returns the configured widths (nil if unset or malformed)
func (o TestOptions) ViewportWidths() []int {
	return intList(o[OptionViewportWidths])
}

// ViewportHeights returns the configured heights (nil if unset or malformed)
func (o TestOptions) ViewportHeights() []int {
	return intList(o[OptionViewportHeights])
}

// Viewports expands the width x height cross product, widths outermost.
// Repeated pairs are dropped, keeping the first occurrence.
func (o TestOptions) Viewports() []Viewport {
	widths := o.ViewportWidths()
	heights := o.ViewportHeights()
	viewports := make([]Viewport, 0, len(widths)*len(heights))
	seen := make(map[Viewport]struct{}, len(widths)*len(heights))
	for _, w := range widths {
		for _, h := range heights {
			vp := Viewport{Width: w, Height: h}
			if _, dup := seen[vp]; dup {
				continue
			}
			seen[vp] = struct{}{}
			viewports = append(viewports, vp)
		}
	}
	return viewports
}

func intList(v interface{}) []int {
	switch list := v.(type) {
	case []int:
		return list
	case []interface{}:
		out := make([]int, 0, len(list))
		for _, item := range list {
			n, ok := toInt(item)
			if !ok {
				return nil
			}
			out = append(out, n)
		}
		return out
	case []float64:
		out := make([]int, 0, len(list))
		for _, f := range list {
			out = append(out, int(math.Round(f)))
		}
		return out
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(math.Round(n)), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

// Viewport is a rendering surface size in CSS pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// RegisteredSuite is a suite as reported by the in-page environment
type RegisteredSuite struct {
	SuiteName    string      `json:"suiteName"`
	SuiteOptions TestOptions `json:"suiteOptions"`
}

// RegisteredTest is a test as reported by the in-page environment
type RegisteredTest struct {
	SuiteName   string      `json:"suiteName"`
	TestName    string      `json:"testName"`
	TestOptions TestOptions `json:"testOptions"`
}

// TestCase is a selected test with its merged options.
// SequenceNumber is assigned at selection time and only drives lane assignment.
type TestCase struct {
	SuiteName      string      `json:"suiteName"`
	TestName       string      `json:"testName"`
	Options        TestOptions `json:"options"`
	SequenceNumber int         `json:"testNumber"`
}

// ViewportGroup buckets the tests that render at one viewport
type ViewportGroup struct {
	ViewportWidth  int        `json:"viewportWidth"`
	ViewportHeight int        `json:"viewportHeight"`
	Tests          []TestCase `json:"tests"`
}

// Viewport returns the group's viewport
func (g ViewportGroup) Viewport() Viewport {
	return Viewport{Width: g.ViewportWidth, Height: g.ViewportHeight}
}

// ScheduledTest is the payload handed to the page for one test in a chunk
type ScheduledTest struct {
	SuiteName            string      `json:"suiteName"`
	TestName             string      `json:"testName"`
	Options              TestOptions `json:"options"`
	ScreenshotOutputPath string      `json:"screenshotOutputPath"`
}

// ClipRect is a capture region in page coordinates
type ClipRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ClampTo keeps the region inside the viewport with at least 1px in each dimension
func (c ClipRect) ClampTo(viewport Viewport) ClipRect {
	return ClipRect{
		X:      math.Max(0, c.X),
		Y:      math.Max(0, c.Y),
		Width:  math.Max(math.Min(float64(viewport.Width), c.Width), 1),
		Height: math.Max(math.Min(float64(viewport.Height), c.Height), 1),
	}
}
