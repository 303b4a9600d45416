package models

import (
	"time"
)

const (
	CommandTest       = "test"
	CommandMakeGolden = "make-golden"
)

// RunRecord is the persisted summary of one runner invocation
type RunRecord struct {
	ID                 string        `json:"id"`
	Command            string        `json:"command" badgerhold:"index"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	Passed             bool          `json:"passed"`
	Tests              int           `json:"tests"`
	Permutations       int           `json:"permutations"`
	Failures           int           `json:"failures"`
	FailedPermutations []Permutation `json:"failed_permutations,omitempty"`
	Error              string        `json:"error,omitempty"`
}

// Duration returns how long the run took
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
