package consistency

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vizard/internal/discovery"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/ternarybob/vizard/internal/screenshot"
)

func writeGolden(t *testing.T, resolver *screenshot.Resolver, suite, test string, width, height int) {
	t.Helper()
	path := resolver.Path(models.RoleGolden, suite, test, width, height)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0644))
}

func multiViewportGroups(t *testing.T) []models.ViewportGroup {
	tests := []models.RegisteredTest{
		{SuiteName: "Cards", TestName: "compact", TestOptions: models.TestOptions{
			models.OptionViewportWidths:  []int{100, 200},
			models.OptionViewportHeights: []int{50},
		}},
	}
	groups, err := discovery.Partition(nil, tests, models.DefaultOptions(1024, 1080), discovery.Selection{}, nil)
	require.NoError(t, err)
	return groups
}

func TestCheckGoldenCompleteness_ReportsMissingViewport(t *testing.T) {
	resolver := screenshot.NewResolver(t.TempDir(), 1024, 1080)
	writeGolden(t, resolver, "Cards", "compact", 100, 50)

	perms := models.Permutations(multiViewportGroups(t))
	require.Len(t, perms, 2)

	result := CheckGoldenCompleteness(perms, resolver)

	assert.False(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Contains(t, result.Violations[0], "200x50")
	assert.Equal(t, CheckNameGoldenCompleteness, result.Name)
}

func TestCheckGoldenCompleteness_Idempotent(t *testing.T) {
	resolver := screenshot.NewResolver(t.TempDir(), 1024, 1080)
	writeGolden(t, resolver, "Cards", "compact", 200, 50)
	perms := models.Permutations(multiViewportGroups(t))

	first := CheckGoldenCompleteness(perms, resolver)
	second := CheckGoldenCompleteness(perms, resolver)

	assert.Equal(t, first, second)
}

func TestCheckGoldenOrphans(t *testing.T) {
	resolver := screenshot.NewResolver(t.TempDir(), 1024, 1080)
	writeGolden(t, resolver, "Cards", "compact", 100, 50)
	writeGolden(t, resolver, "Cards", "compact", 200, 50)
	writeGolden(t, resolver, "Cards", "removed", 100, 50)
	writeGolden(t, resolver, "Cards", "compact", 300, 50)

	// Non-jpeg files are not artifacts
	notes := filepath.Join(resolver.RoleRoot(models.RoleGolden), "README.txt")
	require.NoError(t, os.WriteFile(notes, []byte("golden images"), 0644))

	result, err := CheckGoldenOrphans(models.Permutations(multiViewportGroups(t)), resolver)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	require.Len(t, result.Violations, 2)
	assert.Contains(t, result.Violations[0]+result.Violations[1], filepath.Join("removed", "100x50.jpeg"))
	assert.Contains(t, result.Violations[0]+result.Violations[1], filepath.Join("compact", "300x50.jpeg"))
}

func TestCheckGoldenOrphans_NoGoldenDir(t *testing.T) {
	resolver := screenshot.NewResolver(filepath.Join(t.TempDir(), "missing"), 1024, 1080)

	result, err := CheckGoldenOrphans(models.Permutations(multiViewportGroups(t)), resolver)
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestCheckUniqueness_OneViolationPerCollision(t *testing.T) {
	tests := []models.RegisteredTest{
		{SuiteName: "S", TestName: "dup", TestOptions: models.TestOptions{
			models.OptionViewportWidths:  []int{100, 200},
			models.OptionViewportHeights: []int{100},
		}},
		{SuiteName: "S", TestName: "dup", TestOptions: models.TestOptions{
			models.OptionViewportWidths:  []int{100},
			models.OptionViewportHeights: []int{100},
			"backgroundColor":            "red",
		}},
		{SuiteName: "S", TestName: "other"},
	}
	groups, err := discovery.Partition(nil, tests, models.DefaultOptions(1024, 1080), discovery.Selection{}, nil)
	require.NoError(t, err)

	result := CheckUniqueness(models.Permutations(groups))

	assert.False(t, result.Passed)
	require.Len(t, result.Violations, 1)
	assert.Contains(t, result.Violations[0], "S/dup/100x100")
}

func TestCheckUniqueness_Distinct(t *testing.T) {
	result := CheckUniqueness(models.Permutations(multiViewportGroups(t)))
	assert.True(t, result.Passed)
	assert.Empty(t, result.Violations)
}

func TestCheckAll_AggregatesFailures(t *testing.T) {
	resolver := screenshot.NewResolver(t.TempDir(), 1024, 1080)
	writeGolden(t, resolver, "Cards", "gone", 100, 50)

	results, err := CheckAll(multiViewportGroups(t), resolver)

	var violation *ConsistencyViolation
	require.ErrorAs(t, err, &violation)
	require.Len(t, results, 3)
	require.Len(t, violation.Failed, 2)
	assert.Equal(t, CheckNameGoldenCompleteness, violation.Failed[0].Name)
	assert.Equal(t, CheckNameGoldenOrphans, violation.Failed[1].Name)
	assert.True(t, results[2].Passed)
	assert.Contains(t, err.Error(), "3 violations")
}

func TestCheckAll_Consistent(t *testing.T) {
	resolver := screenshot.NewResolver(t.TempDir(), 1024, 1080)
	writeGolden(t, resolver, "Cards", "compact", 100, 50)
	writeGolden(t, resolver, "Cards", "compact", 200, 50)

	results, err := CheckAll(multiViewportGroups(t), resolver)
	require.NoError(t, err)
	for _, result := range results {
		assert.True(t, result.Passed, result.Name)
	}
}

func TestCheckUniqueness_RepeatedViewportValues(t *testing.T) {
	tests := []models.RegisteredTest{
		{SuiteName: "S", TestName: "a", TestOptions: models.TestOptions{
			models.OptionViewportWidths: []interface{}{float64(100), float64(100)},
		}},
	}
	groups, err := discovery.Partition(nil, tests, models.DefaultOptions(1024, 1080), discovery.Selection{}, nil)
	require.NoError(t, err)

	result := CheckUniqueness(models.Permutations(groups))

	assert.True(t, result.Passed)
	assert.Empty(t, result.Violations)
}
