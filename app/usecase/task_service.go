package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"jobsync/internal/domain/entity"
	"jobsync/internal/domain/repository"
	"jobsync/internal/infrastructure/metrics"
)

type TaskUsecase interface {
	Upsert(ctx context.Context, in UpsertTaskInput) (*entity.Task, error)
	ListActive(ctx context.Context) ([]*entity.Task, error)
	ListAll(ctx context.Context) ([]*entity.Task, error)
	Get(ctx context.Context, taskID string) (*entity.Task, error)
	SetStatus(ctx context.Context, taskID string, status entity.TaskStatus) (*entity.Task, error)
	AdvanceOffset(ctx context.Context, taskID string, offset int64) (*entity.Task, error)
	ResetOffset(ctx context.Context, taskID string) (*entity.Task, error)
	SyncFromSource(ctx context.Context) ([]*entity.Task, error)
}

var _ TaskUsecase = (*TaskService)(nil)

type UpsertTaskInput struct {
	TaskID     string
	Name       string
	Status     entity.TaskStatus
	LastOffset *int64
}

type TaskService struct {
	tasksRepo repository.TaskRepository
	source    repository.DataSource
	logger    *slog.Logger
}

func NewTaskService(tr repository.TaskRepository, src repository.DataSource, logger *slog.Logger) *TaskService {
	return &TaskService{
		tasksRepo: tr,
		source:    src,
		logger:    logger,
	}
}

func (u *TaskService) Upsert(ctx context.Context, in UpsertTaskInput) (*entity.Task, error) {
	if strings.TrimSpace(in.TaskID) == "" {
		return nil, entity.InvalidArgumentf("taskId is required")
	}
	if in.Status != "" {
		if _, err := entity.ParseTaskStatus(string(in.Status)); err != nil {
			return nil, err
		}
	}

	task, err := u.tasksRepo.Upsert(ctx, entity.TaskUpsert{
		TaskID:     in.TaskID,
		Name:       in.Name,
		Status:     in.Status,
		LastOffset: in.LastOffset,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert task %s: %w", in.TaskID, err)
	}
	return task, nil
}

func (u *TaskService) ListActive(ctx context.Context) ([]*entity.Task, error) {
	tasks, err := u.tasksRepo.ListByStatus(ctx, entity.ActiveTaskStatuses...)
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	return tasks, nil
}

func (u *TaskService) ListAll(ctx context.Context) ([]*entity.Task, error) {
	tasks, err := u.tasksRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (u *TaskService) Get(ctx context.Context, taskID string) (*entity.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, nil
	}
	task, err := u.tasksRepo.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (u *TaskService) SetStatus(ctx context.Context, taskID string, status entity.TaskStatus) (*entity.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, nil
	}
	if _, err := entity.ParseTaskStatus(string(status)); err != nil {
		return nil, err
	}
	task, err := u.tasksRepo.SetStatus(ctx, taskID, status)
	if err != nil {
		return nil, fmt.Errorf("set status of task %s: %w", taskID, err)
	}
	if task != nil {
		metrics.IncTaskStatusChange(string(status))
	}
	return task, nil
}

// AdvanceOffset moves the cursor forward. Lower values are ignored by the store.
func (u *TaskService) AdvanceOffset(ctx context.Context, taskID string, offset int64) (*entity.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}
	task, err := u.tasksRepo.AdvanceOffset(ctx, taskID, offset)
	if err != nil {
		return nil, fmt.Errorf("advance offset of task %s: %w", taskID, err)
	}
	return task, nil
}

func (u *TaskService) ResetOffset(ctx context.Context, taskID string) (*entity.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, nil
	}
	task, err := u.tasksRepo.ResetOffset(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("reset offset of task %s: %w", taskID, err)
	}
	return task, nil
}

// SyncFromSource discovers upstream tasks and upserts each one as idle.
// Only a failure to list groups is returned; per-group and per-task
// failures are logged and left out of the result.
func (u *TaskService) SyncFromSource(ctx context.Context) ([]*entity.Task, error) {
	discovered, err := u.discover(ctx)
	if err != nil {
		return nil, err
	}

	synced := make([]*entity.Task, 0, len(discovered))
	for _, ut := range discovered {
		if strings.TrimSpace(ut.ID) == "" {
			u.logger.Warn("discovered task without id; skip", "name", ut.Name)
			continue
		}
		task, err := u.tasksRepo.Upsert(ctx, entity.TaskUpsert{
			TaskID: ut.ID,
			Name:   ut.Name,
			Status: entity.TaskStatusIdle,
		})
		if err != nil {
			u.logger.Error("upsert discovered task failed", "task_id", ut.ID, "err", err)
			metrics.IncError("task_service", "upsert_error")
			continue
		}
		if task != nil {
			synced = append(synced, task)
		}
	}

	u.logger.Info("tasks synced from source", "source", u.source.Name(), "discovered", len(discovered), "synced", len(synced))
	return synced, nil
}

func (u *TaskService) discover(ctx context.Context) ([]entity.UpstreamTask, error) {
	groups, err := u.source.FetchTaskGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch task groups: %w", err)
	}

	var found []entity.UpstreamTask
	for _, g := range groups.Groups {
		list, err := u.source.FetchTasksByGroup(ctx, g.ID)
		if err != nil {
			u.logger.Warn("fetch tasks of group failed; skip group", "group_id", g.ID, "err", err)
			metrics.IncError("task_service", "group_fetch_error")
			continue
		}
		found = append(found, list.Tasks...)
	}

	if len(found) == 0 {
		fallback := u.source.FallbackTasks()
		if len(fallback) > 0 {
			u.logger.Info("no tasks discovered; using fallback set", "count", len(fallback))
		}
		found = fallback
	}
	return found, nil
}
