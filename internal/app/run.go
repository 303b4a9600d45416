package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/vizard/internal/consistency"
	"github.com/ternarybob/vizard/internal/discovery"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/report"
	"github.com/ternarybob/vizard/internal/workspace"
)

// CaseCapture is the meta case recording whether every screenshot was taken
const CaseCapture = "Screenshots are taken successfully"

// GoldenOptions controls a make-golden run
type GoldenOptions struct {
	Selection   discovery.Selection
	SkipCompile bool
	Clean       bool // empty golden/ first
}

// MakeGolden captures golden screenshots for the selected tests
func (a *App) MakeGolden(ctx context.Context, opts GoldenOptions) (*models.RunRecord, error) {
	run := a.newRun(models.CommandMakeGolden)

	groups, err := a.capture(ctx, models.RoleGolden, opts.Selection, workspace.CleanOptions{
		SkipCompile: opts.SkipCompile,
		ClearGolden: opts.Clean,
	})
	run.Tests = models.CountTests(groups)
	run.Permutations = len(models.Permutations(groups))
	run.Passed = err == nil

	a.finishRun(ctx, run, err)
	return run, err
}

// Test captures every test and compares it against its golden. Mismatches
// and consistency violations fail the run without returning an error; the
// report is written in every case that reaches it.
func (a *App) Test(ctx context.Context, skipCompile bool) (*models.RunRecord, error) {
	run := a.newRun(models.CommandTest)
	builder := report.NewBuilder(run.ID)

	groups, captureErr := a.capture(ctx, models.RoleTested, discovery.Selection{}, workspace.CleanOptions{
		SkipCompile: skipCompile,
	})
	perms := models.Permutations(groups)
	run.Tests = models.CountTests(groups)
	run.Permutations = len(perms)

	passed := captureErr == nil
	if passed {
		builder.Pass(CaseCapture)
	} else {
		a.Logger.Error().Err(captureErr).Msg("Error interacting with browser")
		builder.Fail(CaseCapture, captureErr.Error())
	}

	// Comparison only makes sense over a complete and consistent capture
	if passed {
		passed = a.checkConsistency(groups, builder)
	}

	if passed {
		summary := a.newComparator().CompareAll(ctx, perms, builder)
		run.FailedPermutations = summary.FailedPermutations()
		passed = summary.Passed()
	}

	if passed {
		a.Logger.Info().Msg("All tests passed!")
	} else {
		a.Logger.Info().Msg("At least one test failed")
	}

	_, run.Failures = builder.Counts()
	run.Passed = passed

	err := captureErr
	if writeErr := builder.WriteTo(a.Config.ReportPath()); writeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to write report: %w", writeErr))
		run.Passed = false
	} else {
		a.Logger.Info().Str("path", a.Config.ReportPath()).Msg("Report written")
	}

	a.finishRun(ctx, run, err)
	return run, err
}

// capture cleans, compiles, acquires the lane environments, discovers the
// selected tests and runs the scheduler. The environments are released
// before returning on every path.
func (a *App) capture(ctx context.Context, role models.Role, selection discovery.Selection, clean workspace.CleanOptions) ([]models.ViewportGroup, error) {
	if err := workspace.Clean(a.Logger, a.Resolver, a.Config.TmpDir, clean); err != nil {
		return nil, err
	}
	if !clean.SkipCompile {
		if err := a.Compile(ctx); err != nil {
			return nil, err
		}
	}

	envs, release, err := a.environments(ctx)
	if release != nil {
		defer release()
	}
	if err != nil {
		return nil, err
	}

	groups, err := a.newDiscoverer().Discover(ctx, envs, selection)
	if err != nil {
		return nil, err
	}
	if err := workspace.EnsureDirs(a.Logger, a.Resolver, groups); err != nil {
		return groups, err
	}

	return groups, a.newScheduler().Run(ctx, groups, envs, role)
}

// checkConsistency records one meta case per check and reports whether all passed
func (a *App) checkConsistency(groups []models.ViewportGroup, builder *report.Builder) bool {
	results, err := consistency.CheckAll(groups, a.Resolver)
	if results == nil && err != nil {
		a.Logger.Error().Err(err).Msg("Could not run consistency checks")
		builder.Fail(consistency.CheckNameGoldenOrphans, err.Error())
		return false
	}

	for _, result := range results {
		if result.Passed {
			builder.Pass(result.Name)
			continue
		}
		for _, violation := range result.Violations {
			a.Logger.Info().Msg(violation)
		}
		builder.Fail(result.Name, strings.Join(result.Violations, "\n"))
	}

	var violation *consistency.ConsistencyViolation
	if errors.As(err, &violation) {
		a.Logger.Warn().Err(violation).Msg("Skipping screenshot comparison")
		return false
	}
	return true
}

func (a *App) newRun(command string) *models.RunRecord {
	return &models.RunRecord{
		ID:        uuid.New().String(),
		Command:   command,
		StartedAt: time.Now(),
	}
}

// finishRun stamps the run and stores it in the history. Storage failures
// never fail the run.
func (a *App) finishRun(ctx context.Context, run *models.RunRecord, err error) {
	run.FinishedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
	}

	a.Logger.Info().
		Str("run_id", run.ID).
		Str("command", run.Command).
		Bool("passed", run.Passed).
		Int("permutations", run.Permutations).
		Str("duration", run.Duration().Round(time.Millisecond).String()).
		Msg("Run finished")

	if a.History == nil {
		return
	}
	if err := a.History.SaveRun(ctx, run); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to record run history")
		return
	}
	if keep := a.Config.History.Keep; keep > 0 {
		if _, err := a.History.PruneRuns(ctx, keep); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to prune run history")
		}
	}
}

// Runs lists the most recent runs
func (a *App) Runs(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if a.History == nil {
		return nil, fmt.Errorf("run history is disabled")
	}
	return a.History.ListRuns(ctx, limit)
}
