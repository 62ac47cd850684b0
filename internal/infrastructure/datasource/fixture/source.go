package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"jobsync/internal/domain/entity"
	"jobsync/internal/domain/repository"
	"jobsync/internal/infrastructure/metrics"
)

const (
	sourceName   = "fixture"
	ManifestFile = "tasks.yaml"

	DefaultGroupID   = "mock-group-001"
	DefaultGroupName = "Mock Job Scraping Group"
)

// Task binds an upstream task id to the JSON file holding its rows.
type Task struct {
	TaskID   string `yaml:"taskId"`
	TaskName string `yaml:"taskName"`
	File     string `yaml:"file"`
}

type Manifest struct {
	Group struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"group"`
	Tasks []Task `yaml:"tasks"`
}

var DefaultTasks = []Task{
	{TaskID: "mock-task-frontend", TaskName: "Frontend Jobs Scraping", File: "frontend-jobs.json"},
	{TaskID: "mock-task-backend", TaskName: "Backend Jobs Scraping", File: "backend-job.json"},
	{TaskID: "mock-task-design", TaskName: "Design Jobs Scraping", File: "design-job.json"},
}

// Source serves rows from JSON files on disk. Files are re-read on every
// fetch so they can be edited while the service runs.
type Source struct {
	dir       string
	groupID   string
	groupName string
	tasks     []Task
	logger    *slog.Logger
	now       func() time.Time
}

var _ repository.DataSource = (*Source)(nil)

func NewSource(dir string, logger *slog.Logger) (*Source, error) {
	s := &Source{
		dir:       dir,
		groupID:   DefaultGroupID,
		groupName: DefaultGroupName,
		tasks:     DefaultTasks,
		logger:    logger,
		now:       time.Now,
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		logger.Warn("fixture directory not found; tasks will return no rows", "dir", dir)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to check directory %s: %w", dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("path %s exists but is not a directory", dir)
	}

	m, err := loadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	if m != nil {
		if m.Group.ID != "" {
			s.groupID = m.Group.ID
		}
		if m.Group.Name != "" {
			s.groupName = m.Group.Name
		}
		if len(m.Tasks) > 0 {
			s.tasks = m.Tasks
		}
	}

	logger.Info("fixture source ready", "dir", dir, "tasks", len(s.tasks))
	return s, nil
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest %s: %w", path, err)
	}
	for i, t := range m.Tasks {
		if strings.TrimSpace(t.TaskID) == "" || strings.TrimSpace(t.File) == "" {
			return nil, fmt.Errorf("manifest %s: task %d needs taskId and file", path, i)
		}
	}
	return &m, nil
}

func (s *Source) Name() string { return sourceName }

func (s *Source) Tasks() []Task { return s.tasks }

func (s *Source) FallbackTasks() []entity.UpstreamTask {
	now := s.now().UTC()
	out := make([]entity.UpstreamTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, entity.UpstreamTask{
			ID:        t.TaskID,
			Name:      t.TaskName,
			Status:    1,
			CreatedAt: now,
			LastRunAt: now,
		})
	}
	return out
}

func (s *Source) FetchTaskGroups(_ context.Context) (entity.TaskGroupList, error) {
	metrics.IncUpstreamRequest(sourceName, "task_groups", "ok")
	return entity.TaskGroupList{
		Total: 1,
		Groups: []entity.TaskGroup{
			{ID: s.groupID, Name: s.groupName, CreatedAt: s.now().UTC()},
		},
	}, nil
}

func (s *Source) FetchTasksByGroup(_ context.Context, groupID string) (entity.TaskList, error) {
	if strings.TrimSpace(groupID) == "" {
		return entity.TaskList{}, entity.InvalidArgumentf("invalid taskGroupId provided")
	}
	metrics.IncUpstreamRequest(sourceName, "tasks_by_group", "ok")
	tasks := s.FallbackTasks()
	return entity.TaskList{Total: len(tasks), Tasks: tasks}, nil
}

func (s *Source) FetchTaskData(_ context.Context, taskID string, offset int64, size int) (entity.TaskData, error) {
	if strings.TrimSpace(taskID) == "" {
		return entity.TaskData{}, entity.InvalidArgumentf("invalid taskId provided")
	}
	offset, size = entity.ClampPage(offset, size)
	metrics.IncUpstreamRequest(sourceName, "task_data", "ok")

	task, ok := s.find(taskID)
	if !ok {
		s.logger.Warn("fixture task not found; returning empty data", "task_id", taskID)
		return entity.TaskData{Total: 0, Rows: []entity.RawRecord{}}, nil
	}

	rows := s.loadRows(filepath.Join(s.dir, task.File), taskID)
	total := int64(len(rows))
	page := window(rows, offset, size)

	s.logger.Debug("fixture rows served", "task_id", taskID, "file", task.File, "offset", offset, "rows", len(page), "total", total)
	return entity.TaskData{Total: total, Rows: page}, nil
}

func (s *Source) find(taskID string) (Task, bool) {
	for _, t := range s.tasks {
		if t.TaskID == taskID {
			return t, true
		}
	}
	return Task{}, false
}

// loadRows never fails: unreadable or malformed files yield no rows.
func (s *Source) loadRows(path, taskID string) []entity.RawRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("fixture file not found; using empty data", "path", path, "task_id", taskID)
		} else {
			s.logger.Error("failed to read fixture file; using empty data", "path", path, "err", err)
			metrics.IncError("fixture_source", "read_error")
		}
		return []entity.RawRecord{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		s.logger.Warn("fixture file is not a JSON array; using empty data", "path", path, "err", err)
		metrics.IncError("fixture_source", "parse_error")
		return []entity.RawRecord{}
	}

	rows := make([]entity.RawRecord, 0, len(items))
	for _, item := range items {
		rows = append(rows, decorate(item))
	}
	return rows
}

// decorate adds Job_Title, Job_location and btn_URL from common alternates.
// Fields present in the original object win.
func decorate(item json.RawMessage) entity.RawRecord {
	var rec entity.RawRecord
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &rec) != nil {
		rec = nil
	}

	out := entity.RawRecord{
		"Job_Title":    entity.String(firstText(rec, "Job_Title", "title", "jobTitle")),
		"Job_location": entity.String(firstText(rec, "Job_location", "location", "desc")),
		"btn_URL":      entity.String(firstText(rec, "btn_URL", "url", "btnURL")),
	}
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func firstText(rec entity.RawRecord, keys ...string) string {
	for _, k := range keys {
		if s := rec[k].String(); s != "" {
			return s
		}
	}
	return ""
}

func window(rows []entity.RawRecord, offset int64, size int) []entity.RawRecord {
	total := int64(len(rows))
	if offset >= total {
		return []entity.RawRecord{}
	}
	end := offset + int64(size)
	if end > total {
		end = total
	}
	return rows[offset:end]
}
