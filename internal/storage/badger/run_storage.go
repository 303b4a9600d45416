package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrRunNotFound is returned when no run is stored under the requested ID
var ErrRunNotFound = errors.New("run not found")

// RunStorage implements interfaces.RunStorage for Badger
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage opens the run history database at path
func NewRunStorage(logger arbor.ILogger, path string) (*RunStorage, error) {
	db, err := NewBadgerDB(logger, path)
	if err != nil {
		return nil, err
	}
	return &RunStorage{db: db, logger: logger}, nil
}

var _ interfaces.RunStorage = (*RunStorage)(nil)

func (s *RunStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := s.db.Store().Get(id, &run); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all of them.
func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunRecord
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.RunRecord, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// PruneRuns deletes everything but the keep most recent runs
func (s *RunStorage) PruneRuns(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var stale []models.RunRecord
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse().Skip(keep)
	if err := s.db.Store().Find(&stale, query); err != nil {
		return 0, fmt.Errorf("failed to find stale runs: %w", err)
	}

	deleted := 0
	for _, run := range stale {
		if err := s.db.Store().Delete(run.ID, models.RunRecord{}); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("failed to delete run %s: %w", run.ID, err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Int("keep", keep).Msg("Pruned run history")
	}
	return deleted, nil
}

func (s *RunStorage) Close() error {
	return s.db.Close()
}
