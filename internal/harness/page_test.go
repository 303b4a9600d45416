package harness

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/scheduler"
)

// MockBrowserWorker is a mock implementation of BrowserWorker
type MockBrowserWorker struct {
	mock.Mock

	mu    sync.Mutex
	hosts map[string]interfaces.HostFunction
}

func (m *MockBrowserWorker) ID() int { return 0 }

func (m *MockBrowserWorker) SetViewport(ctx context.Context, width, height int) error {
	return m.Called(ctx, width, height).Error(0)
}

func (m *MockBrowserWorker) Evaluate(ctx context.Context, expression string, result interface{}) error {
	return m.Called(ctx, expression, result).Error(0)
}

func (m *MockBrowserWorker) ExposeFunction(ctx context.Context, name string, fn interfaces.HostFunction) error {
	m.mu.Lock()
	if m.hosts == nil {
		m.hosts = make(map[string]interfaces.HostFunction)
	}
	m.hosts[name] = fn
	m.mu.Unlock()
	return nil
}

func (m *MockBrowserWorker) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowserWorker) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockBrowserWorker) CaptureRegion(ctx context.Context, clip models.ClipRect) ([]byte, error) {
	args := m.Called(ctx, clip)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockBrowserWorker) MoveMouse(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockBrowserWorker) Hover(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockBrowserWorker) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockBrowserWorker) PageErrors() int64 {
	return int64(m.Called().Int(0))
}

func (m *MockBrowserWorker) Close() error { return nil }

// call invokes a host function the way the page would
func (m *MockBrowserWorker) call(t *testing.T, name string, arg interface{}) (interface{}, error) {
	m.mu.Lock()
	fn, ok := m.hosts[name]
	m.mu.Unlock()
	require.True(t, ok, "host function %s not exposed", name)

	payload, err := json.Marshal(arg)
	require.NoError(t, err)
	return fn(context.Background(), payload)
}

func runtimeReady(args mock.Arguments) {
	*args.Get(2).(*bool) = true
}

// runRequestOf decodes the argument of a window._runTests expression
func runRequestOf(t *testing.T, expression string) runRequest {
	payload := strings.TrimSuffix(strings.TrimPrefix(expression, "window._runTests("), ")")
	var req runRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	return req
}

func isRunTests(expr string) bool {
	return strings.HasPrefix(expr, "window._runTests(")
}

func newLoadedPage(t *testing.T, worker *MockBrowserWorker) *Page {
	worker.On("Navigate", mock.Anything, "http://localhost:9009/runner.html").Return(nil).Once()
	worker.On("Evaluate", mock.Anything, "typeof window._registerTests === 'function'", mock.Anything).Run(runtimeReady).Return(nil)
	worker.On("PageErrors").Return(0)

	page := NewPage(arbor.NewLogger(), worker, models.Viewport{Width: 1024, Height: 1080}, Options{
		LoadRetryInterval: 5 * time.Millisecond,
		LoadTimeout:       time.Second,
	})
	require.NoError(t, page.Load(context.Background(), "http://localhost:9009/runner.html"))
	return page
}

func TestPage_LoadExposesHostFunctions(t *testing.T) {
	worker := &MockBrowserWorker{}
	newLoadedPage(t, worker)

	for _, name := range []string{FnTakeScreenshot, FnResetMouse, FnHover, FnClick, FnLegacyHover, FnLegacyClick} {
		assert.Contains(t, worker.hosts, name)
	}
	worker.AssertExpectations(t)
}

func TestPage_LoadRetriesNavigation(t *testing.T) {
	worker := &MockBrowserWorker{}
	worker.On("Navigate", mock.Anything, "http://localhost:9010/runner.html").Return(errors.New("connection refused")).Twice()
	worker.On("Navigate", mock.Anything, "http://localhost:9010/runner.html").Return(nil).Once()
	worker.On("Evaluate", mock.Anything, "typeof window._registerTests === 'function'", mock.Anything).Run(runtimeReady).Return(nil)
	worker.On("PageErrors").Return(0)

	page := NewPage(arbor.NewLogger(), worker, models.Viewport{Width: 10, Height: 10}, Options{
		LoadRetryInterval: 5 * time.Millisecond,
		LoadTimeout:       time.Second,
	})

	require.NoError(t, page.Load(context.Background(), "http://localhost:9010/runner.html"))
	worker.AssertNumberOfCalls(t, "Navigate", 3)
}

func TestPage_LoadFailsOnPageErrors(t *testing.T) {
	worker := &MockBrowserWorker{}
	worker.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	worker.On("Evaluate", mock.Anything, mock.Anything, mock.Anything).Run(runtimeReady).Return(nil)
	worker.On("PageErrors").Return(2)

	page := NewPage(arbor.NewLogger(), worker, models.Viewport{Width: 10, Height: 10}, Options{LoadTimeout: time.Second})
	err := page.Load(context.Background(), "http://localhost:9009/runner.html")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
}

func TestPage_LoadTimesOut(t *testing.T) {
	worker := &MockBrowserWorker{}
	worker.On("Navigate", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	page := NewPage(arbor.NewLogger(), worker, models.Viewport{Width: 10, Height: 10}, Options{
		LoadRetryInterval: 5 * time.Millisecond,
		LoadTimeout:       50 * time.Millisecond,
	})
	err := page.Load(context.Background(), "http://localhost:9009/runner.html")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPage_TakeScreenshotClampsAndWrites(t *testing.T) {
	worker := &MockBrowserWorker{}
	page := newLoadedPage(t, worker)

	worker.On("SetViewport", mock.Anything, 200, 100).Return(nil)
	require.NoError(t, page.SetViewport(context.Background(), 200, 100))

	expectedClip := models.ClipRect{X: 0, Y: 10, Width: 200, Height: 1}
	worker.On("CaptureRegion", mock.Anything, expectedClip).Return([]byte("jpeg-bytes"), nil)

	out := filepath.Join(t.TempDir(), "tested", "Suite", "test", "200x100.jpeg")
	_, err := worker.call(t, FnTakeScreenshot, map[string]interface{}{
		"targetRect":           map[string]float64{"x": -5, "y": 10, "width": 500, "height": 0},
		"screenshotOutputPath": out,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	worker.AssertExpectations(t)
}

func TestPage_RunTestsSendsBatch(t *testing.T) {
	worker := &MockBrowserWorker{}
	page := newLoadedPage(t, worker)

	var expression string
	worker.On("Evaluate", mock.Anything, mock.MatchedBy(func(expr string) bool {
		return strings.HasPrefix(expr, "window._runTests(")
	}), nil).Run(func(args mock.Arguments) {
		expression = args.String(1)
	}).Return(nil)

	err := page.RunTests(context.Background(), []models.ScheduledTest{
		{SuiteName: "Buttons", TestName: "primary", ScreenshotOutputPath: "/out/tested/Buttons/primary/10x10.jpeg"},
	})
	require.NoError(t, err)

	decoded := runRequestOf(t, expression)
	require.Len(t, decoded.Tests, 1)
	assert.Equal(t, "primary", decoded.Tests[0].TestName)
	assert.Equal(t, uint64(1), decoded.Attempt)
}

func TestPage_RunTestsSurfacesWriteErrors(t *testing.T) {
	worker := &MockBrowserWorker{}
	page := newLoadedPage(t, worker)

	// A regular file where a directory is needed makes the write fail
	blocker := filepath.Join(t.TempDir(), "tested")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	out := filepath.Join(blocker, "Suite", "test", "10x10.jpeg")

	worker.On("CaptureRegion", mock.Anything, mock.Anything).Return([]byte("jpeg"), nil)
	worker.On("Evaluate", mock.Anything, mock.MatchedBy(func(expr string) bool {
		return strings.HasPrefix(expr, "window._runTests(")
	}), nil).Run(func(args mock.Arguments) {
		_, _ = worker.call(t, FnTakeScreenshot, map[string]interface{}{
			"targetRect":           map[string]float64{"x": 0, "y": 0, "width": 10, "height": 10},
			"screenshotOutputPath": out,
			"attempt":              runRequestOf(t, args.String(1)).Attempt,
		})
	}).Return(errors.New("Error: failed to write screenshot"))

	err := page.RunTests(context.Background(), []models.ScheduledTest{{SuiteName: "Suite", TestName: "test", ScreenshotOutputPath: out}})

	var writeErr *scheduler.ArtifactWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, out, writeErr.Path)
}

func TestPage_LateWriteFailureStaysWithItsAttempt(t *testing.T) {
	worker := &MockBrowserWorker{}
	page := newLoadedPage(t, worker)

	blocker := filepath.Join(t.TempDir(), "tested")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	stale := filepath.Join(blocker, "Suite", "slow", "10x10.jpeg")

	worker.On("CaptureRegion", mock.Anything, mock.Anything).Return([]byte("jpeg"), nil)

	var attempts []uint64
	worker.On("Evaluate", mock.Anything, mock.MatchedBy(isRunTests), nil).Run(func(args mock.Arguments) {
		req := runRequestOf(t, args.String(1))
		attempts = append(attempts, req.Attempt)
		if len(attempts) == 2 {
			// The first batch timed out earlier; its screenshot lands now
			_, err := worker.call(t, FnTakeScreenshot, map[string]interface{}{
				"targetRect":           map[string]float64{"x": 0, "y": 0, "width": 10, "height": 10},
				"screenshotOutputPath": stale,
				"attempt":              attempts[0],
			})
			assert.Error(t, err)
		}
	}).Return(nil)

	batch := []models.ScheduledTest{{SuiteName: "Suite", TestName: "slow", ScreenshotOutputPath: stale}}
	require.NoError(t, page.RunTests(context.Background(), batch))
	require.NoError(t, page.RunTests(context.Background(), batch))

	require.Len(t, attempts, 2)
	assert.Less(t, attempts[0], attempts[1])
}

func TestPage_ResetReloadsAndRegisters(t *testing.T) {
	worker := &MockBrowserWorker{}
	page := newLoadedPage(t, worker)

	worker.On("Reload", mock.Anything).Return(nil).Once()
	worker.On("Evaluate", mock.Anything, "window._registerTests()", nil).Return(nil).Once()

	require.NoError(t, page.Reset(context.Background()))
	worker.AssertExpectations(t)
}

func TestPage_PointerHelpers(t *testing.T) {
	worker := &MockBrowserWorker{}
	newLoadedPage(t, worker)

	worker.On("MoveMouse", mock.Anything, 0.0, 0.0).Return(nil).Once()
	worker.On("Hover", mock.Anything, "#menu").Return(nil).Twice()
	worker.On("Click", mock.Anything, "button.primary").Return(nil).Once()

	_, err := worker.call(t, FnResetMouse, nil)
	require.NoError(t, err)
	_, err = worker.call(t, FnHover, "#menu")
	require.NoError(t, err)
	_, err = worker.call(t, FnLegacyHover, "#menu")
	require.NoError(t, err)
	_, err = worker.call(t, FnClick, "button.primary")
	require.NoError(t, err)

	_, err = worker.call(t, FnClick, 42)
	assert.Error(t, err)

	worker.AssertExpectations(t)
}

func TestPage_SuitesAndTests(t *testing.T) {
	worker := &MockBrowserWorker{}
	page := newLoadedPage(t, worker)

	worker.On("Evaluate", mock.Anything, "window._getSuites()", mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]models.RegisteredSuite) = []models.RegisteredSuite{{SuiteName: "S"}}
	}).Return(nil)
	worker.On("Evaluate", mock.Anything, "window._getTests()", mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(2).(*[]models.RegisteredTest) = []models.RegisteredTest{{SuiteName: "S", TestName: "t"}}
	}).Return(nil)

	suites, err := page.Suites(context.Background())
	require.NoError(t, err)
	assert.Len(t, suites, 1)

	tests, err := page.Tests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t", tests[0].TestName)
}

func TestRuntimeScript_Embedded(t *testing.T) {
	script := string(RuntimeScript)
	for _, symbol := range []string{"_registerTests", "_getSuites", "_getTests", "_runTests", TargetRootID, FnTakeScreenshot, FnResetMouse} {
		assert.Contains(t, script, symbol)
	}
}
