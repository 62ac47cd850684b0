package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobsync/internal/domain/entity"
	"jobsync/internal/domain/normalizer"
	"jobsync/internal/domain/repository"
	"jobsync/internal/infrastructure/metrics"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type JobUsecase interface {
	Create(ctx context.Context, in CreateJobInput) (*entity.Job, error)
	BulkInsert(ctx context.Context, taskID string, rows []entity.RawRecord) (entity.BulkResult, error)
	List(ctx context.Context, page, limit int) ([]*entity.Job, int64, error)
	ListByTask(ctx context.Context, taskID string) ([]*entity.Job, error)
	Count(ctx context.Context) (int64, error)
	CountByTask(ctx context.Context, taskID string) (int64, error)
	Get(ctx context.Context, id string) (*entity.Job, error)
	Update(ctx context.Context, id string, patch entity.JobPatch) (*entity.Job, error)
	Delete(ctx context.Context, id string) (bool, error)
}

var _ JobUsecase = (*JobService)(nil)

type CreateJobInput struct {
	SourceTaskID   string
	JobTitle       string
	JobDescription string
	JobSalary      *string
	DatePosted     *time.Time
	RawData        entity.RawRecord
	Processed      bool
}

type JobService struct {
	jobsRepo repository.JobRepository
	logger   *slog.Logger
}

func NewJobService(jr repository.JobRepository, logger *slog.Logger) *JobService {
	return &JobService{
		jobsRepo: jr,
		logger:   logger,
	}
}

func (u *JobService) Create(ctx context.Context, in CreateJobInput) (*entity.Job, error) {
	if strings.TrimSpace(in.SourceTaskID) == "" {
		return nil, entity.InvalidArgumentf("sourceTaskId is required")
	}
	if strings.TrimSpace(in.JobTitle) == "" {
		return nil, entity.InvalidArgumentf("jobTitle is required")
	}
	if strings.TrimSpace(in.JobDescription) == "" {
		return nil, entity.InvalidArgumentf("jobDescription is required")
	}

	job := entity.NewJob(in.SourceTaskID, in.JobTitle, in.JobDescription)
	job.JobSalary = in.JobSalary
	if in.DatePosted != nil {
		d := in.DatePosted.UTC()
		job.DatePosted = &d
	}
	job.RawData = in.RawData
	job.Processed = in.Processed

	if err := u.jobsRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// BulkInsert normalizes every row and inserts those whose (taskID, title)
// pair is not stored yet. A failing row is logged and counted, never fatal.
func (u *JobService) BulkInsert(ctx context.Context, taskID string, rows []entity.RawRecord) (entity.BulkResult, error) {
	var res entity.BulkResult
	if strings.TrimSpace(taskID) == "" {
		return res, entity.InvalidArgumentf("taskId is required")
	}

	for i, row := range rows {
		if row == nil {
			u.logger.Warn("skip nil row", "task_id", taskID, "index", i)
			res.Skipped++
			res.Failed++
			continue
		}

		n := normalizer.Normalize(row)

		exists, err := u.jobsRepo.ExistsByTaskAndTitle(ctx, taskID, n.Title)
		if err != nil {
			u.logger.Warn("dedup lookup failed; skip row", "task_id", taskID, "index", i, "err", err)
			res.Skipped++
			res.Failed++
			continue
		}
		if exists {
			res.Skipped++
			continue
		}

		job := entity.NewJob(taskID, n.Title, n.Description)
		job.JobSalary = n.Salary
		job.DatePosted = n.PostedDate
		job.RawData = row

		if err := u.jobsRepo.Create(ctx, job); err != nil {
			u.logger.Warn("insert row failed; skip", "task_id", taskID, "index", i, "err", err)
			res.Skipped++
			res.Failed++
			continue
		}
		res.Created++
	}

	metrics.AddJobsIngested("created", res.Created)
	metrics.AddJobsIngested("skipped", res.Skipped-res.Failed)
	metrics.AddJobsIngested("failed", res.Failed)

	u.logger.Debug("bulk insert done", "task_id", taskID, "created", res.Created, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// List pages through all jobs, newest first. page is 1-based.
func (u *JobService) List(ctx context.Context, page, limit int) ([]*entity.Job, int64, error) {
	page, limit = ClampListParams(page, limit)
	skip := int64(page-1) * int64(limit)

	jobs, err := u.jobsRepo.List(ctx, skip, int64(limit))
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	total, err := u.jobsRepo.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}
	return jobs, total, nil
}

// ClampListParams floors page at 1 and bounds limit to [1, MaxPageLimit].
func ClampListParams(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func (u *JobService) ListByTask(ctx context.Context, taskID string) ([]*entity.Job, error) {
	if strings.TrimSpace(taskID) == "" {
		return []*entity.Job{}, nil
	}
	jobs, err := u.jobsRepo.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by task: %w", err)
	}
	return jobs, nil
}

func (u *JobService) Count(ctx context.Context) (int64, error) {
	n, err := u.jobsRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

func (u *JobService) CountByTask(ctx context.Context, taskID string) (int64, error) {
	if strings.TrimSpace(taskID) == "" {
		return 0, nil
	}
	n, err := u.jobsRepo.CountByTask(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("count jobs by task: %w", err)
	}
	return n, nil
}

// Get returns nil for a blank or unknown id.
func (u *JobService) Get(ctx context.Context, id string) (*entity.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	job, err := u.jobsRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (u *JobService) Update(ctx context.Context, id string, patch entity.JobPatch) (*entity.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	if patch.JobTitle != nil && strings.TrimSpace(*patch.JobTitle) == "" {
		return nil, entity.InvalidArgumentf("jobTitle cannot be empty")
	}
	if patch.SourceTaskID != nil && strings.TrimSpace(*patch.SourceTaskID) == "" {
		return nil, entity.InvalidArgumentf("sourceTaskId cannot be empty")
	}
	if patch.IsEmpty() {
		return u.Get(ctx, id)
	}

	job, err := u.jobsRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	return job, nil
}

func (u *JobService) Delete(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	ok, err := u.jobsRepo.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	return ok, nil
}
