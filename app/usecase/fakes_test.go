package usecase

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"jobsync/internal/domain/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memJobRepo is an in-memory JobRepository.
type memJobRepo struct {
	mu        sync.Mutex
	jobs      []*entity.Job
	createErr error
	existsErr error
	// failTitles makes Create fail for the listed titles.
	failTitles map[string]bool
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{failTitles: map[string]bool{}}
}

func (r *memJobRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if r.failTitles[job.JobTitle] {
		return entity.MarkPersistence(errors.New("write conflict"), "insert job")
	}
	cp := *job
	r.jobs = append(r.jobs, &cp)
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memJobRepo) ExistsByTaskAndTitle(_ context.Context, taskID, title string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsErr != nil {
		return false, r.existsErr
	}
	for _, j := range r.jobs {
		if j.SourceTaskID == taskID && j.JobTitle == title {
			return true, nil
		}
	}
	return false, nil
}

func (r *memJobRepo) sorted() []*entity.Job {
	out := make([]*entity.Job, len(r.jobs))
	copy(out, r.jobs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memJobRepo) List(_ context.Context, skip, limit int64) ([]*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted()
	if skip >= int64(len(all)) {
		return []*entity.Job{}, nil
	}
	end := skip + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[skip:end], nil
}

func (r *memJobRepo) ListByTask(_ context.Context, taskID string) ([]*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Job, 0)
	for _, j := range r.sorted() {
		if j.SourceTaskID == taskID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *memJobRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.jobs)), nil
}

func (r *memJobRepo) CountByTask(ctx context.Context, taskID string) (int64, error) {
	jobs, _ := r.ListByTask(ctx, taskID)
	return int64(len(jobs)), nil
}

func (r *memJobRepo) Update(_ context.Context, id string, p entity.JobPatch) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID != id {
			continue
		}
		if p.JobTitle != nil {
			j.JobTitle = *p.JobTitle
		}
		if p.JobDescription != nil {
			j.JobDescription = *p.JobDescription
		}
		if p.SourceTaskID != nil {
			j.SourceTaskID = *p.SourceTaskID
		}
		if p.ClearSalary {
			j.JobSalary = nil
		} else if p.JobSalary != nil {
			j.JobSalary = p.JobSalary
		}
		if p.ClearDatePosted {
			j.DatePosted = nil
		} else if p.DatePosted != nil {
			j.DatePosted = p.DatePosted
		}
		if p.Processed != nil {
			j.Processed = *p.Processed
		}
		j.UpdatedAt = time.Now().UTC()
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (r *memJobRepo) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, j := range r.jobs {
		if j.ID == id {
			r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// memTaskRepo mirrors the Mongo semantics, including $max on offsets.
type memTaskRepo struct {
	mu        sync.Mutex
	tasks     map[string]*entity.Task
	order     []string
	upsertErr map[string]error
	statusLog map[string][]entity.TaskStatus
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{
		tasks:     map[string]*entity.Task{},
		upsertErr: map[string]error{},
		statusLog: map[string][]entity.TaskStatus{},
	}
}

func (r *memTaskRepo) seed(t entity.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := t
	r.tasks[t.TaskID] = &cp
	r.order = append(r.order, t.TaskID)
}

func (r *memTaskRepo) get(taskID string) *entity.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (r *memTaskRepo) statuses(taskID string) []entity.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.TaskStatus(nil), r.statusLog[taskID]...)
}

func (r *memTaskRepo) Upsert(_ context.Context, in entity.TaskUpsert) (*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.upsertErr[in.TaskID]; err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	status := in.Status
	if status == "" {
		status = entity.TaskStatusIdle
	}
	t, ok := r.tasks[in.TaskID]
	if !ok {
		t = &entity.Task{TaskID: in.TaskID, CreatedAt: now}
		r.tasks[in.TaskID] = t
		r.order = append(r.order, in.TaskID)
	}
	t.Name = in.Name
	t.Status = status
	t.LastRun = &now
	t.UpdatedAt = now
	if in.LastOffset != nil {
		t.LastOffset = *in.LastOffset
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) GetByTaskID(_ context.Context, taskID string) (*entity.Task, error) {
	return r.get(taskID), nil
}

func (r *memTaskRepo) List(_ context.Context) ([]*entity.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Task, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.tasks[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTaskRepo) ListByStatus(ctx context.Context, statuses ...entity.TaskStatus) ([]*entity.Task, error) {
	all, _ := r.List(ctx)
	out := make([]*entity.Task, 0)
	for _, t := range all {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (r *memTaskRepo) mutate(taskID string, fn func(t *entity.Task)) *entity.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil
	}
	fn(t)
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp
}

func (r *memTaskRepo) SetStatus(_ context.Context, taskID string, status entity.TaskStatus) (*entity.Task, error) {
	t := r.mutate(taskID, func(t *entity.Task) {
		now := time.Now().UTC()
		t.Status = status
		t.LastRun = &now
	})
	if t != nil {
		r.mu.Lock()
		r.statusLog[taskID] = append(r.statusLog[taskID], status)
		r.mu.Unlock()
	}
	return t, nil
}

func (r *memTaskRepo) AdvanceOffset(_ context.Context, taskID string, offset int64) (*entity.Task, error) {
	return r.mutate(taskID, func(t *entity.Task) {
		if offset > t.LastOffset {
			t.LastOffset = offset
		}
		now := time.Now().UTC()
		t.LastRun = &now
	}), nil
}

func (r *memTaskRepo) ResetOffset(_ context.Context, taskID string) (*entity.Task, error) {
	return r.mutate(taskID, func(t *entity.Task) {
		t.LastOffset = 0
		t.Status = entity.TaskStatusIdle
	}), nil
}

// fakeSource is a scripted DataSource.
type fakeSource struct {
	mu        sync.Mutex
	groups    []entity.TaskGroup
	groupsErr error
	tasks     map[string][]entity.UpstreamTask
	groupErr  map[string]error
	rows      map[string][]entity.RawRecord
	dataErr   map[string]error
	fallback  []entity.UpstreamTask
	fetches   []fetchCall

	// when set, FetchTaskData signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

type fetchCall struct {
	TaskID string
	Offset int64
	Size   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		tasks:    map[string][]entity.UpstreamTask{},
		groupErr: map[string]error{},
		rows:     map[string][]entity.RawRecord{},
		dataErr:  map[string]error{},
	}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchTaskGroups(_ context.Context) (entity.TaskGroupList, error) {
	if f.groupsErr != nil {
		return entity.TaskGroupList{}, f.groupsErr
	}
	return entity.TaskGroupList{Total: len(f.groups), Groups: f.groups}, nil
}

func (f *fakeSource) FetchTasksByGroup(_ context.Context, groupID string) (entity.TaskList, error) {
	if err := f.groupErr[groupID]; err != nil {
		return entity.TaskList{}, err
	}
	ts := f.tasks[groupID]
	return entity.TaskList{Total: len(ts), Tasks: ts}, nil
}

func (f *fakeSource) FetchTaskData(_ context.Context, taskID string, offset int64, size int) (entity.TaskData, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, fetchCall{TaskID: taskID, Offset: offset, Size: size})
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	if err := f.dataErr[taskID]; err != nil {
		return entity.TaskData{}, err
	}
	all := f.rows[taskID]
	total := int64(len(all))
	if offset >= total {
		return entity.TaskData{Total: total, Rows: []entity.RawRecord{}}, nil
	}
	end := offset + int64(size)
	if end > total {
		end = total
	}
	return entity.TaskData{Total: total, Rows: all[offset:end]}, nil
}

func (f *fakeSource) FallbackTasks() []entity.UpstreamTask {
	return f.fallback
}

func titled(titles ...string) []entity.RawRecord {
	rows := make([]entity.RawRecord, 0, len(titles))
	for _, t := range titles {
		rows = append(rows, entity.RawRecord{"title": entity.String(t)})
	}
	return rows
}
