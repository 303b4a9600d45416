package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/vizard/internal/common"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
)

// ChunkState is the state of one chunk's attempt
type ChunkState int

const (
	Attempting ChunkState = iota
	Succeeded
	TimedOut
	Failed
	GivenUp
)

func (s ChunkState) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Succeeded:
		return "succeeded"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	case GivenUp:
		return "given_up"
	}
	return fmt.Sprintf("ChunkState(%d)", int(s))
}

// Chunk splits tests into consecutive slices of at most size tests
func Chunk(tests []models.ScheduledTest, size int) [][]models.ScheduledTest {
	if size < 1 {
		size = 1
	}
	chunks := make([][]models.ScheduledTest, 0, (len(tests)+size-1)/size)
	for start := 0; start < len(tests); start += size {
		end := min(start+size, len(tests))
		chunks = append(chunks, tests[start:end])
	}
	return chunks
}

// runChunk drives one chunk through attempts until it succeeds or the retry budget runs out.
// Every failed attempt resets the lane environment before moving on.
func (s *Scheduler) runChunk(ctx context.Context, env interfaces.TestEnvironment, ref ChunkRef, tests []models.ScheduledTest) error {
	maxAttempts := s.retries + 1

	for attempt := 1; ; attempt++ {
		state, err := s.attempt(ctx, env, ref, attempt, tests)

		s.logger.Debug().
			Int("lane", ref.Lane).
			Str("viewport", ref.Viewport.String()).
			Int("chunk", ref.Index).
			Int("attempt", attempt).
			Str("state", state.String()).
			Msg("Chunk attempt finished")

		if state == Succeeded {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var writeErr *ArtifactWriteError
		if errors.As(err, &writeErr) {
			return err
		}

		s.logger.Warn().
			Err(err).
			Int("lane", ref.Lane).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("Chunk failed, resetting page")

		if resetErr := env.Reset(ctx); resetErr != nil {
			s.logger.Error().Err(resetErr).Int("lane", ref.Lane).Msg("Failed to reset page")
		}

		if attempt >= maxAttempts {
			s.logger.Error().
				Int("lane", ref.Lane).
				Str("chunk", ref.String()).
				Str("state", GivenUp.String()).
				Msg("Giving up on chunk")
			return &ChunkRetriesExhaustedError{Chunk: ref, Attempts: attempt, Last: err}
		}
	}
}

// attempt races one in-page run of the chunk against the hang timeout.
// A losing run is abandoned: its context is cancelled and the caller resets the page.
func (s *Scheduler) attempt(ctx context.Context, env interfaces.TestEnvironment, ref ChunkRef, attempt int, tests []models.ScheduledTest) (ChunkState, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	common.SafeGo(s.logger, fmt.Sprintf("lane-%d-chunk-%d", ref.Lane, ref.Index), func() {
		done <- env.RunTests(attemptCtx, tests)
	})

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			var writeErr *ArtifactWriteError
			if errors.As(err, &writeErr) {
				return Failed, err
			}
			return Failed, &ChunkExecutionError{Chunk: ref, Attempt: attempt, Err: err}
		}
		return Succeeded, nil
	case <-timer.C:
		return TimedOut, &ChunkTimeoutError{Chunk: ref, Attempt: attempt, Timeout: s.timeout}
	case <-ctx.Done():
		return Failed, ctx.Err()
	}
}
