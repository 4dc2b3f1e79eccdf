package store

import (
	"context"

	"github.com/me/choppy/pkg/model"
)

// Store defines the persistence layer for batch run history.
type Store interface {
	// Batch runs
	CreateBatch(ctx context.Context, run *model.BatchRun) error
	GetBatch(ctx context.Context, id string) (*model.BatchRun, error)
	ListBatches(ctx context.Context, opts model.ListOptions) ([]*model.BatchRun, int, error)

	// Per-record outcomes
	AddRecords(ctx context.Context, records []model.BatchRecord) error
	ListRecords(ctx context.Context, batchID string) ([]model.BatchRecord, error)
	FindByWorkflowID(ctx context.Context, workflowID string) (*model.BatchRecord, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
