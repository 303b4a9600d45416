package discovery

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
)

// Discoverer reads the registered test set out of loaded lane environments
type Discoverer struct {
	logger       arbor.ILogger
	defaults     models.TestOptions
	goldenExists GoldenExists
}

// NewDiscoverer creates a discoverer. defaults is the built-in option layer.
func NewDiscoverer(logger arbor.ILogger, defaults models.TestOptions, goldenExists GoldenExists) *Discoverer {
	return &Discoverer{
		logger:       logger,
		defaults:     defaults,
		goldenExists: goldenExists,
	}
}

// Discover registers the tests in every lane, reads the suites and tests back
// from the first lane and partitions them into viewport groups.
func (d *Discoverer) Discover(ctx context.Context, envs []interfaces.TestEnvironment, selection Selection) ([]models.ViewportGroup, error) {
	if len(envs) == 0 {
		return nil, &DiscoveryError{Op: "register", Lane: -1, Err: fmt.Errorf("no test environments")}
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, env := range envs {
		p.Go(func(ctx context.Context) error {
			if err := env.Register(ctx); err != nil {
				return &DiscoveryError{Op: "register", Lane: env.Lane(), Err: err}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	primary := envs[0]
	suites, err := primary.Suites(ctx)
	if err != nil {
		return nil, &DiscoveryError{Op: "suites", Lane: primary.Lane(), Err: err}
	}
	tests, err := primary.Tests(ctx)
	if err != nil {
		return nil, &DiscoveryError{Op: "tests", Lane: primary.Lane(), Err: err}
	}

	selected, err := Select(suites, tests, d.defaults, selection, d.goldenExists)
	if err != nil {
		return nil, &DiscoveryError{Op: "options", Lane: primary.Lane(), Err: err}
	}
	groups := Group(selected)

	d.logger.Info().
		Int("suites", len(suites)).
		Int("registered", len(tests)).
		Int("selected", len(selected)).
		Int("viewports", len(groups)).
		Bool("missing_only", selection.MissingOnly).
		Msg("Discovered tests")

	if len(selected) == 0 {
		d.logger.Warn().Msg("0 tests found")
	}

	return groups, nil
}
