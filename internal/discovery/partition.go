package discovery

import (
	"github.com/ternarybob/vizard/internal/models"
)

// Selection narrows which registered tests run. The zero value selects everything.
type Selection struct {
	// MissingOnly selects a test when at least one of its viewport
	// combinations has no golden artifact yet
	MissingOnly bool

	// Suites restricts the run to the named suites
	Suites []string
}

// GoldenExists reports whether the golden artifact of a permutation is on disk
type GoldenExists func(p models.Permutation) bool

func (s Selection) allowsSuite(name string) bool {
	if len(s.Suites) == 0 {
		return true
	}
	for _, suite := range s.Suites {
		if suite == name {
			return true
		}
	}
	return false
}

func (s Selection) selects(test models.TestCase, goldenExists GoldenExists) bool {
	if !s.allowsSuite(test.SuiteName) {
		return false
	}
	if !s.MissingOnly {
		return true
	}
	for _, vp := range test.Options.Viewports() {
		p := models.Permutation{
			SuiteName:      test.SuiteName,
			TestName:       test.TestName,
			ViewportWidth:  vp.Width,
			ViewportHeight: vp.Height,
		}
		if goldenExists == nil || !goldenExists(p) {
			return true
		}
	}
	return false
}

// Select merges options (defaults < suite < test) and applies the selection.
// Selected tests are numbered densely from 0 in registration order.
// A test in a selected suite whose merged options expand to no viewport
// is an *OptionsError.
func Select(suites []models.RegisteredSuite, tests []models.RegisteredTest, defaults models.TestOptions, selection Selection, goldenExists GoldenExists) ([]models.TestCase, error) {
	suiteOptions := make(map[string]models.TestOptions, len(suites))
	for _, suite := range suites {
		suiteOptions[suite.SuiteName] = suite.SuiteOptions
	}

	selected := make([]models.TestCase, 0, len(tests))
	for _, test := range tests {
		candidate := models.TestCase{
			SuiteName: test.SuiteName,
			TestName:  test.TestName,
			Options:   models.MergeOptions(defaults, suiteOptions[test.SuiteName], test.TestOptions),
		}
		if !selection.allowsSuite(candidate.SuiteName) {
			continue
		}
		if len(candidate.Options.Viewports()) == 0 {
			return nil, &OptionsError{
				SuiteName: test.SuiteName,
				TestName:  test.TestName,
				Widths:    candidate.Options[models.OptionViewportWidths],
				Heights:   candidate.Options[models.OptionViewportHeights],
			}
		}
		if !selection.selects(candidate, goldenExists) {
			continue
		}
		candidate.SequenceNumber = len(selected)
		selected = append(selected, candidate)
	}
	return selected, nil
}

// Group buckets tests by every (width, height) of their cross product.
// Groups keep the order in which their viewport first appears. Viewports
// never repeats a pair, so a test lands in a group at most once.
func Group(tests []models.TestCase) []models.ViewportGroup {
	var groups []models.ViewportGroup
	index := make(map[models.Viewport]int)

	for _, test := range tests {
		for _, vp := range test.Options.Viewports() {
			i, ok := index[vp]
			if !ok {
				i = len(groups)
				index[vp] = i
				groups = append(groups, models.ViewportGroup{
					ViewportWidth:  vp.Width,
					ViewportHeight: vp.Height,
				})
			}
			groups[i].Tests = append(groups[i].Tests, test)
		}
	}
	return groups
}

// Partition is Select followed by Group
func Partition(suites []models.RegisteredSuite, tests []models.RegisteredTest, defaults models.TestOptions, selection Selection, goldenExists GoldenExists) ([]models.ViewportGroup, error) {
	selected, err := Select(suites, tests, defaults, selection, goldenExists)
	if err != nil {
		return nil, err
	}
	return Group(selected), nil
}
