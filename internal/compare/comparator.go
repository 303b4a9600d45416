// Package compare diffs every captured permutation against its golden and
// records the outcome in the run report.
package compare

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/report"
	"github.com/ternarybob/vizard/internal/screenshot"
)

// ArtifactIOError - a permutation's artifacts could not be read, diffed or copied.
// It fails that permutation only.
type ArtifactIOError struct {
	Permutation models.Permutation
	Op          string
	Err         error
}

func (e *ArtifactIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Permutation, e.Err)
}

func (e *ArtifactIOError) Unwrap() error {
	return e.Err
}

// Outcome is the result of comparing one permutation. A mismatch is an
// outcome, not an error.
type Outcome struct {
	Permutation models.Permutation
	Passed      bool
	DiffCount   int
	Attachment  string
	Err         error
	Duration    time.Duration
}

// Summary totals the outcomes of a comparison pass
type Summary struct {
	Outcomes []Outcome
	Failed   int
}

// Passed reports whether every permutation matched its golden
func (s Summary) Passed() bool {
	return s.Failed == 0
}

// FailedPermutations lists the permutations that did not pass
func (s Summary) FailedPermutations() []models.Permutation {
	var failed []models.Permutation
	for _, o := range s.Outcomes {
		if !o.Passed {
			failed = append(failed, o.Permutation)
		}
	}
	return failed
}

// Comparator compares permutations with bounded parallelism
type Comparator struct {
	logger      arbor.ILogger
	oracle      interfaces.DiffOracle
	resolver    *screenshot.Resolver
	reportDir   string
	options     interfaces.DiffOptions
	parallelism int
}

// NewComparator creates a comparator. parallelism < 1 means one worker per CPU.
func NewComparator(logger arbor.ILogger, oracle interfaces.DiffOracle, resolver *screenshot.Resolver, reportDir string, options interfaces.DiffOptions, parallelism int) *Comparator {
	if parallelism < 1 {
		parallelism = runtime.NumCPU()
	}
	return &Comparator{
		logger:      logger,
		oracle:      oracle,
		resolver:    resolver,
		reportDir:   reportDir,
		options:     options,
		parallelism: parallelism,
	}
}

// CompareAll compares every permutation and adds one equality case per
// permutation to builder. It never stops early on a mismatch or an I/O failure.
func (c *Comparator) CompareAll(ctx context.Context, perms []models.Permutation, builder *report.Builder) Summary {
	c.logger.Info().Int("permutations", len(perms)).Msg("Testing screenshots")

	p := pool.NewWithResults[Outcome]().WithMaxGoroutines(c.parallelism)
	for _, perm := range perms {
		p.Go(func() Outcome {
			if err := ctx.Err(); err != nil {
				return Outcome{Permutation: perm, Err: err}
			}
			return c.compare(perm)
		})
	}
	outcomes := p.Wait()

	summary := Summary{Outcomes: outcomes}
	for _, o := range outcomes {
		entry := report.Case{
			ClassName:  o.Permutation.ClassName(),
			Name:       o.Permutation.Dimensions(),
			Duration:   o.Duration,
			Attachment: o.Attachment,
		}
		if !o.Passed {
			summary.Failed++
			entry.Failure = failureMessage(o)
		}
		builder.Add(report.SuiteEquality, entry)
	}

	return summary
}

func failureMessage(o Outcome) string {
	if o.Err != nil && o.DiffCount > 0 {
		return fmt.Sprintf("Differed by %d pixels (%v)", o.DiffCount, o.Err)
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	return fmt.Sprintf("Differed by %d pixels", o.DiffCount)
}

func (c *Comparator) compare(perm models.Permutation) Outcome {
	start := time.Now()
	tested := c.resolver.PermutationPath(models.RoleTested, perm)
	golden := c.resolver.PermutationPath(models.RoleGolden, perm)
	diff := c.resolver.PermutationPath(models.RoleDiff, perm)

	result, err := c.oracle.Compare(tested, golden, diff, c.options)
	if err != nil {
		ioErr := &ArtifactIOError{Permutation: perm, Op: "compare", Err: err}
		c.logger.Error().Err(ioErr).Msg("Could not compare screenshot")
		return Outcome{Permutation: perm, Err: ioErr, Duration: time.Since(start)}
	}

	outcome := Outcome{
		Permutation: perm,
		Passed:      result.Same,
		DiffCount:   result.DiffCount,
		Duration:    time.Since(start),
	}
	if result.Same {
		return outcome
	}

	c.logger.Info().
		Str("test", perm.String()).
		Int("diff_count", result.DiffCount).
		Msg("Screenshot differs from golden")

	// Bundle golden/tested/diff for inspection
	sources := map[models.Role]string{
		models.RoleGolden: golden,
		models.RoleTested: tested,
		models.RoleDiff:   diff,
	}
	for _, role := range models.Roles {
		dst := screenshot.FailurePath(c.reportDir, role, perm)
		if err := copyFile(sources[role], dst); err != nil {
			outcome.Err = &ArtifactIOError{Permutation: perm, Op: "copy " + string(role), Err: err}
			c.logger.Error().Err(outcome.Err).Msg("Could not save failing screenshot")
			continue
		}
		if role == models.RoleDiff {
			if abs, err := filepath.Abs(dst); err == nil {
				dst = abs
			}
			outcome.Attachment = dst
		}
	}

	return outcome
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
