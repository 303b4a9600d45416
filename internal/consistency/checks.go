// Package consistency validates the selected permutation set against the
// golden tree before any pixel comparison happens.
package consistency

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/screenshot"
)

// Check names, as they appear in the report's meta suite
const (
	CheckNameGoldenCompleteness = "All tests can be compared against a golden screenshot"
	CheckNameGoldenOrphans      = "All golden screenshots can be compared against a test"
	CheckNameUniqueness         = "All tests are unique"
)

// Result is the outcome of one check
type Result struct {
	Name       string
	Passed     bool
	Violations []string
}

func newResult(name string, violations []string) Result {
	return Result{Name: name, Passed: len(violations) == 0, Violations: violations}
}

// ConsistencyViolation aggregates every failing check of a run
type ConsistencyViolation struct {
	Failed []Result
}

func (e *ConsistencyViolation) Error() string {
	names := make([]string, 0, len(e.Failed))
	count := 0
	for _, result := range e.Failed {
		names = append(names, result.Name)
		count += len(result.Violations)
	}
	return fmt.Sprintf("consistency checks failed (%d violations): %s", count, strings.Join(names, "; "))
}

// CheckGoldenCompleteness reports every selected permutation without a golden artifact
func CheckGoldenCompleteness(perms []models.Permutation, resolver *screenshot.Resolver) Result {
	var violations []string
	for _, p := range perms {
		path := resolver.PermutationPath(models.RoleGolden, p)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			violations = append(violations, fmt.Sprintf("Test %s has no golden screenshot", p))
		}
	}
	return newResult(CheckNameGoldenCompleteness, violations)
}

// CheckGoldenOrphans reports every golden artifact on disk that no selected permutation owns.
// A missing golden root holds no orphans.
func CheckGoldenOrphans(perms []models.Permutation, resolver *screenshot.Resolver) (Result, error) {
	selected := make(map[models.Permutation]struct{}, len(perms))
	for _, p := range perms {
		selected[p] = struct{}{}
	}

	root := resolver.RoleRoot(models.RoleGolden)
	matches, err := doublestar.Glob(os.DirFS(root), "**/*"+screenshot.Extension, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newResult(CheckNameGoldenOrphans, nil), nil
		}
		return Result{}, fmt.Errorf("failed to scan golden screenshots in %s: %w", root, err)
	}

	var violations []string
	for _, match := range matches {
		path := filepath.Join(root, filepath.FromSlash(match))
		p, err := screenshot.ParseArtifactPath(match)
		if err != nil {
			violations = append(violations, fmt.Sprintf("Golden screenshot at %s is not a suite/test/<width>x<height>.jpeg path", path))
			continue
		}
		if _, ok := selected[p]; !ok {
			violations = append(violations, fmt.Sprintf("Golden screenshot at %s has no associated test", path))
		}
	}
	return newResult(CheckNameGoldenOrphans, violations), nil
}

// CheckUniqueness reports each permutation selected more than once, once
func CheckUniqueness(perms []models.Permutation) Result {
	counts := make(map[models.Permutation]int, len(perms))
	var violations []string
	for _, p := range perms {
		counts[p]++
		if counts[p] == 2 {
			violations = append(violations, fmt.Sprintf("Duplicate test: %s", p))
		}
	}
	return newResult(CheckNameUniqueness, violations)
}

// CheckAll runs every check. The results are always returned; the error is a
// *ConsistencyViolation when any check failed.
func CheckAll(groups []models.ViewportGroup, resolver *screenshot.Resolver) ([]Result, error) {
	perms := models.Permutations(groups)

	orphans, err := CheckGoldenOrphans(perms, resolver)
	if err != nil {
		return nil, err
	}

	results := []Result{
		CheckGoldenCompleteness(perms, resolver),
		orphans,
		CheckUniqueness(perms),
	}

	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	if len(failed) > 0 {
		return results, &ConsistencyViolation{Failed: failed}
	}
	return results, nil
}
