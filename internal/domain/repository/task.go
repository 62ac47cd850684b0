package repository

import (
	"context"

	"jobsync/internal/domain/entity"
)

// TaskRepository persists per-task cursors. Mutations on an unknown taskId
// return (nil, nil).
type TaskRepository interface {
	Upsert(ctx context.Context, in entity.TaskUpsert) (*entity.Task, error)
	GetByTaskID(ctx context.Context, taskID string) (*entity.Task, error)
	List(ctx context.Context) ([]*entity.Task, error)
	ListByStatus(ctx context.Context, statuses ...entity.TaskStatus) ([]*entity.Task, error)
	SetStatus(ctx context.Context, taskID string, status entity.TaskStatus) (*entity.Task, error)
	AdvanceOffset(ctx context.Context, taskID string, offset int64) (*entity.Task, error)
	ResetOffset(ctx context.Context, taskID string) (*entity.Task, error)
}
