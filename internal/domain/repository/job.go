package repository

import (
	"context"

	"jobsync/internal/domain/entity"
)

// JobRepository is the persistence surface for job records.
// Lookups that miss return (nil, nil).
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id string) (*entity.Job, error)
	ExistsByTaskAndTitle(ctx context.Context, taskID, title string) (bool, error)
	List(ctx context.Context, skip, limit int64) ([]*entity.Job, error)
	ListByTask(ctx context.Context, taskID string) ([]*entity.Job, error)
	Count(ctx context.Context) (int64, error)
	CountByTask(ctx context.Context, taskID string) (int64, error)
	Update(ctx context.Context, id string, patch entity.JobPatch) (*entity.Job, error)
	Delete(ctx context.Context, id string) (bool, error)
}
