package scheduler

import (
	"fmt"
	"time"

	"github.com/ternarybob/vizard/internal/models"
)

// ChunkRef identifies one chunk within a run
type ChunkRef struct {
	Lane     int
	Viewport models.Viewport
	Index    int // chunk index within the lane's viewport group
	Tests    int
}

func (c ChunkRef) String() string {
	return fmt.Sprintf("lane %d, viewport %s, chunk %d (%d tests)", c.Lane, c.Viewport, c.Index, c.Tests)
}

// ChunkTimeoutError - the chunk did not finish before the hang timeout.
// Recovered by resetting the lane and retrying.
type ChunkTimeoutError struct {
	Chunk   ChunkRef
	Attempt int
	Timeout time.Duration
}

func (e *ChunkTimeoutError) Error() string {
	return fmt.Sprintf("chunk timed out after %s (%s, attempt %d)", e.Timeout, e.Chunk, e.Attempt)
}

// ChunkExecutionError - the in-page run rejected. Recovered by resetting the lane and retrying.
type ChunkExecutionError struct {
	Chunk   ChunkRef
	Attempt int
	Err     error
}

func (e *ChunkExecutionError) Error() string {
	return fmt.Sprintf("chunk execution failed (%s, attempt %d): %v", e.Chunk, e.Attempt, e.Err)
}

func (e *ChunkExecutionError) Unwrap() error {
	return e.Err
}

// ChunkRetriesExhaustedError - every attempt of a chunk failed. Aborts the run.
type ChunkRetriesExhaustedError struct {
	Chunk    ChunkRef
	Attempts int
	Last     error
}

func (e *ChunkRetriesExhaustedError) Error() string {
	return fmt.Sprintf("chunk failed after %d retries (%s): %v", e.Attempts-1, e.Chunk, e.Last)
}

func (e *ChunkRetriesExhaustedError) Unwrap() error {
	return e.Last
}

// ArtifactWriteError - a captured screenshot could not be written. Not retried.
type ArtifactWriteError struct {
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("failed to write screenshot %s: %v", e.Path, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error {
	return e.Err
}
