package discovery

import (
	"fmt"

	"github.com/ternarybob/vizard/internal/models"
)

// DiscoveryError - the loaded environment could not be queried for its tests.
// Finding zero tests is not a DiscoveryError.
type DiscoveryError struct {
	Op   string
	Lane int
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed (%s, lane %d): %v", e.Op, e.Lane, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// OptionsError - a selected test's merged options expand to no viewport,
// usually because a viewport list is missing or holds a non-number.
type OptionsError struct {
	SuiteName string
	TestName  string
	Widths    interface{}
	Heights   interface{}
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("test %s/%s has no valid viewport (%s=%v, %s=%v)",
		e.SuiteName, e.TestName,
		models.OptionViewportWidths, e.Widths,
		models.OptionViewportHeights, e.Heights)
}
