package repository

import (
	"context"

	"jobsync/internal/domain/entity"
)

// DataSource is the upstream the scheduler pulls rows from.
type DataSource interface {
	Name() string
	FetchTaskGroups(ctx context.Context) (entity.TaskGroupList, error)
	FetchTasksByGroup(ctx context.Context, groupID string) (entity.TaskList, error)
	FetchTaskData(ctx context.Context, taskID string, offset int64, size int) (entity.TaskData, error)
	// FallbackTasks lists tasks to track when discovery finds nothing.
	FallbackTasks() []entity.UpstreamTask
}
