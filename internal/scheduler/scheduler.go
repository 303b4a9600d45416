// Package scheduler drives lane environments through viewport groups in
// chunks, recovering hung or failed chunks with a page reset and bounded retry.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/screenshot"
)

// DefaultSlowTestThreshold sizes the chunk timeout when none is given
const DefaultSlowTestThreshold = 7 * time.Second

// Options tunes chunking and hang recovery
type Options struct {
	ChunkSize int
	Timeout   time.Duration // hang timeout of one chunk attempt
	Retries   int           // attempts after the first
}

// Scheduler owns lane assignment and chunk retry state for one run
type Scheduler struct {
	logger    arbor.ILogger
	resolver  *screenshot.Resolver
	chunkSize int
	timeout   time.Duration
	retries   int
}

// NewScheduler creates a scheduler writing artifacts through resolver
func NewScheduler(logger arbor.ILogger, resolver *screenshot.Resolver, opts Options) *Scheduler {
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 1
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(opts.ChunkSize) * DefaultSlowTestThreshold
	}
	return &Scheduler{
		logger:    logger,
		resolver:  resolver,
		chunkSize: opts.ChunkSize,
		timeout:   opts.Timeout,
		retries:   opts.Retries,
	}
}

// LaneGroups returns the groups filtered to the tests of one lane
// (sequenceNumber mod laneCount == lane). Groups left empty are dropped.
func LaneGroups(groups []models.ViewportGroup, lane, laneCount int) []models.ViewportGroup {
	var out []models.ViewportGroup
	for _, group := range groups {
		var tests []models.TestCase
		for _, test := range group.Tests {
			if test.SequenceNumber%laneCount == lane {
				tests = append(tests, test)
			}
		}
		if len(tests) == 0 {
			continue
		}
		out = append(out, models.ViewportGroup{
			ViewportWidth:  group.ViewportWidth,
			ViewportHeight: group.ViewportHeight,
			Tests:          tests,
		})
	}
	return out
}

// Run captures every test of every group with role's output paths.
// Lanes run in parallel, one per environment; the first fatal lane error
// cancels the others and is returned.
func (s *Scheduler) Run(ctx context.Context, groups []models.ViewportGroup, lanes []interfaces.TestEnvironment, role models.Role) error {
	if len(lanes) == 0 {
		return fmt.Errorf("no lanes to schedule on")
	}

	start := time.Now()
	laneCount := len(lanes)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, env := range lanes {
		laneGroups := LaneGroups(groups, i, laneCount)
		p.Go(func(ctx context.Context) error {
			return s.runLane(ctx, i, env, laneGroups, role)
		})
	}

	if err := p.Wait(); err != nil {
		return err
	}

	s.logger.Info().
		Int("lanes", laneCount).
		Int("permutations", len(models.Permutations(groups))).
		Str("role", string(role)).
		Str("duration", time.Since(start).Round(time.Millisecond).String()).
		Msg("Screenshots captured")

	return nil
}

func (s *Scheduler) runLane(ctx context.Context, lane int, env interfaces.TestEnvironment, groups []models.ViewportGroup, role models.Role) error {
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := env.SetViewport(ctx, group.ViewportWidth, group.ViewportHeight); err != nil {
			return fmt.Errorf("lane %d: failed to set viewport %s: %w", lane, group.Viewport(), err)
		}

		scheduled := make([]models.ScheduledTest, 0, len(group.Tests))
		for _, test := range group.Tests {
			scheduled = append(scheduled, models.ScheduledTest{
				SuiteName:            test.SuiteName,
				TestName:             test.TestName,
				Options:              test.Options,
				ScreenshotOutputPath: s.resolver.Path(role, test.SuiteName, test.TestName, group.ViewportWidth, group.ViewportHeight),
			})
		}

		chunks := Chunk(scheduled, s.chunkSize)
		for i, chunk := range chunks {
			ref := ChunkRef{Lane: lane, Viewport: group.Viewport(), Index: i, Tests: len(chunk)}
			if err := s.runChunk(ctx, env, ref, chunk); err != nil {
				return err
			}
			s.logger.Info().
				Int("lane", lane).
				Str("viewport", group.Viewport().String()).
				Str("chunk", fmt.Sprintf("%d/%d", i+1, len(chunks))).
				Int("tests", len(chunk)).
				Msg("Chunk complete")
		}
	}
	return nil
}
