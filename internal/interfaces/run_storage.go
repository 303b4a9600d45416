package interfaces

import (
	"context"

	"github.com/ternarybob/vizard/internal/models"
)

// RunStorage - persistence for run history
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
	PruneRuns(ctx context.Context, keep int) (int, error)
	Close() error
}
