package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"jobsync/internal/domain/entity"
	"jobsync/internal/domain/repository"
	"jobsync/internal/infrastructure/metrics"
)

const DefaultSyncInterval = time.Hour

const (
	triggerSchedule = "schedule"
	triggerManual   = "manual"
	triggerDirect   = "direct"
)

// RunReport summarizes one sync run.
type RunReport struct {
	Trigger         string    `json:"trigger"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	TasksDiscovered int       `json:"tasksDiscovered"`
	TasksProcessed  int       `json:"tasksProcessed"`
	TasksCompleted  int       `json:"tasksCompleted"`
	TasksFailed     int       `json:"tasksFailed"`
	JobsCreated     int       `json:"jobsCreated"`
	JobsSkipped     int       `json:"jobsSkipped"`
	Error           string    `json:"error,omitempty"`
}

type SchedulerStatus struct {
	IsRunning  bool       `json:"isRunning"`
	Message    string     `json:"message"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	LastReport *RunReport `json:"lastReport,omitempty"`
}

type SchedulerUsecase interface {
	RunOnce(ctx context.Context) (RunReport, error)
	SyncTasks(ctx context.Context) ([]*entity.Task, error)
	Trigger() bool
	Status() SchedulerStatus
}

var _ SchedulerUsecase = (*SyncScheduler)(nil)

type SchedulerConfig struct {
	Interval    time.Duration
	SyncOnStart bool
}

// SyncScheduler drives task discovery and incremental fetching.
// At most one run is active per instance; overlapping requests are rejected.
type SyncScheduler struct {
	tasks  TaskUsecase
	jobs   JobUsecase
	source repository.DataSource
	logger *slog.Logger

	interval    time.Duration
	syncOnStart bool

	running atomic.Bool

	mu         sync.RWMutex
	lastRunAt  *time.Time
	lastReport *RunReport

	// control
	cron    *cron.Cron
	baseCtx context.Context
	bg      sync.WaitGroup
}

func NewSyncScheduler(
	tasks TaskUsecase,
	jobs JobUsecase,
	source repository.DataSource,
	cfg SchedulerConfig,
	logger *slog.Logger,
) *SyncScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SyncScheduler{
		tasks:       tasks,
		jobs:        jobs,
		source:      source,
		logger:      logger,
		interval:    interval,
		syncOnStart: cfg.SyncOnStart,
		baseCtx:     context.Background(),
	}
}

// Start registers the periodic run. Runs never inherit ctx cancellation;
// Stop waits for an in-flight run instead.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.baseCtx = context.WithoutCancel(ctx)

	cronLog := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo))
	s.cron = cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog)))

	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.run(s.baseCtx, triggerSchedule); err != nil && !errors.Is(err, entity.ErrSyncInProgress) {
			s.logger.Warn("scheduled sync failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule sync %q: %w", spec, err)
	}
	s.cron.Start()

	s.logger.Info("SyncScheduler started", "interval", s.interval, "source", s.source.Name())

	if s.syncOnStart {
		if !s.Trigger() {
			s.logger.Info("initial sync skipped; run already in progress")
		}
	}
	return nil
}

func (s *SyncScheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.bg.Wait()
	s.logger.Info("SyncScheduler fully stopped")
}

// RunOnce performs one run on the caller's goroutine.
func (s *SyncScheduler) RunOnce(ctx context.Context) (RunReport, error) {
	return s.run(ctx, triggerDirect)
}

// SyncTasks runs task discovery alone. It shares the run-lock so it cannot
// reset tasks that an in-flight run has marked running.
func (s *SyncScheduler) SyncTasks(ctx context.Context) ([]*entity.Task, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("task discovery rejected; run already in progress")
		return nil, entity.ErrSyncInProgress
	}
	defer s.running.Store(false)
	return s.tasks.SyncFromSource(ctx)
}

// Trigger starts a run in the background. It reports false, without
// queueing anything, when a run already holds the lock.
func (s *SyncScheduler) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("manual sync rejected; run already in progress")
		metrics.IncSyncRun(triggerManual, "skipped")
		return false
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer s.release()
		if _, err := s.execute(s.baseCtx, triggerManual); err != nil {
			s.logger.Warn("manual sync failed", "err", err)
		}
	}()
	return true
}

func (s *SyncScheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SchedulerStatus{IsRunning: s.running.Load()}
	if st.IsRunning {
		st.Message = "Sync in progress"
	} else {
		st.Message = "Scheduler idle"
	}
	if s.lastRunAt != nil {
		t := *s.lastRunAt
		st.LastRunAt = &t
	}
	if s.lastReport != nil {
		r := *s.lastReport
		st.LastReport = &r
	}
	return st
}

func (s *SyncScheduler) run(ctx context.Context, trigger string) (RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("sync skipped; run already in progress", "trigger", trigger)
		metrics.IncSyncRun(trigger, "skipped")
		return RunReport{}, entity.ErrSyncInProgress
	}
	defer s.release()
	return s.execute(ctx, trigger)
}

func (s *SyncScheduler) release() {
	metrics.SetSyncRunning(false)
	s.running.Store(false)
}

// execute must only be called while holding the run-lock.
func (s *SyncScheduler) execute(ctx context.Context, trigger string) (RunReport, error) {
	metrics.SetSyncRunning(true)
	report := RunReport{Trigger: trigger, StartedAt: time.Now().UTC()}

	s.logger.Info("sync started", "trigger", trigger)

	err := s.sync(ctx, &report)

	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Error = err.Error()
	}
	s.record(report)

	metrics.ObserveSyncDuration(report.FinishedAt.Sub(report.StartedAt))
	if err != nil {
		metrics.IncSyncRun(trigger, "error")
		s.logger.Error("sync failed", "trigger", trigger, "err", err)
		return report, err
	}
	metrics.IncSyncRun(trigger, "ok")
	s.logger.Info("sync finished",
		"trigger", trigger,
		"tasks_processed", report.TasksProcessed,
		"tasks_failed", report.TasksFailed,
		"jobs_created", report.JobsCreated,
		"jobs_skipped", report.JobsSkipped,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

func (s *SyncScheduler) record(report RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := report.FinishedAt
	s.lastRunAt = &t
	s.lastReport = &report
}

func (s *SyncScheduler) sync(ctx context.Context, report *RunReport) error {
	discovered, err := s.tasks.SyncFromSource(ctx)
	if err != nil {
		return fmt.Errorf("sync tasks from source: %w", err)
	}
	report.TasksDiscovered = len(discovered)

	active, err := s.tasks.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tasks: %w", err)
	}

	s.logger.Debug("found active tasks", "count", len(active))

	for _, task := range active {
		s.processTask(ctx, task, report)
	}
	return nil
}

// processTask runs one fetch → insert → advance → status cycle.
// Failures mark the task as error and never stop the run.
func (s *SyncScheduler) processTask(ctx context.Context, task *entity.Task, report *RunReport) {
	if task == nil || strings.TrimSpace(task.TaskID) == "" {
		s.logger.Warn("active task without id; skip")
		return
	}
	taskID := task.TaskID
	report.TasksProcessed++

	if _, err := s.tasks.SetStatus(ctx, taskID, entity.TaskStatusRunning); err != nil {
		s.failTask(ctx, taskID, "mark running", err, report)
		return
	}

	data, err := s.source.FetchTaskData(ctx, taskID, task.LastOffset, entity.SyncBatchSize)
	if err != nil {
		s.failTask(ctx, taskID, "fetch task data", err, report)
		return
	}

	if len(data.Rows) == 0 {
		if _, err := s.tasks.SetStatus(ctx, taskID, entity.TaskStatusIdle); err != nil {
			s.failTask(ctx, taskID, "mark idle", err, report)
			return
		}
		metrics.IncTaskProcessed(string(entity.TaskStatusIdle))
		s.logger.Debug("no new rows", "task_id", taskID, "offset", task.LastOffset)
		return
	}

	res, err := s.jobs.BulkInsert(ctx, taskID, data.Rows)
	if err != nil {
		s.failTask(ctx, taskID, "bulk insert", err, report)
		return
	}
	report.JobsCreated += res.Created
	report.JobsSkipped += res.Skipped

	newOffset := task.LastOffset + int64(len(data.Rows))
	if _, err := s.tasks.AdvanceOffset(ctx, taskID, newOffset); err != nil {
		s.failTask(ctx, taskID, "advance offset", err, report)
		return
	}

	final := entity.TaskStatusIdle
	if newOffset >= data.Total {
		final = entity.TaskStatusCompleted
	}
	if _, err := s.tasks.SetStatus(ctx, taskID, final); err != nil {
		s.failTask(ctx, taskID, "mark "+string(final), err, report)
		return
	}
	if final == entity.TaskStatusCompleted {
		report.TasksCompleted++
	}
	metrics.IncTaskProcessed(string(final))

	s.logger.Info("task processed",
		"task_id", taskID,
		"rows", len(data.Rows),
		"created", res.Created,
		"skipped", res.Skipped,
		"offset", newOffset,
		"total", data.Total,
		"status", final,
	)
}

func (s *SyncScheduler) failTask(ctx context.Context, taskID, step string, cause error, report *RunReport) {
	report.TasksFailed++
	metrics.IncTaskProcessed(string(entity.TaskStatusError))
	metrics.IncError("sync_scheduler", strings.ReplaceAll(step, " ", "_")+"_error")
	s.logger.Error("task sync failed", "task_id", taskID, "step", step, "err", cause)

	if _, err := s.tasks.SetStatus(ctx, taskID, entity.TaskStatusError); err != nil {
		s.logger.Warn("failed to mark task error", "task_id", taskID, "err", err)
	}
}
