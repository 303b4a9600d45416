package interfaces

import (
	"context"

	"github.com/ternarybob/vizard/internal/models"
)

// TestEnvironment - the in-page test environment loaded into one browser worker
type TestEnvironment interface {
	// Lane returns the lane index this environment is bound to
	Lane() int

	// Register invokes the page's registration entry point (idempotent)
	Register(ctx context.Context) error
	Suites(ctx context.Context) ([]models.RegisteredSuite, error)
	Tests(ctx context.Context) ([]models.RegisteredTest, error)

	SetViewport(ctx context.Context, width, height int) error

	// RunTests executes the batch in the page and returns once every
	// screenshot of the batch has been written
	RunTests(ctx context.Context, tests []models.ScheduledTest) error

	// Reset reloads the page and re-registers its tests
	Reset(ctx context.Context) error
}
