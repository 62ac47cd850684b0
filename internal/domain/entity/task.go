package entity

import (
	"time"
)

type TaskStatus string

const (
	TaskStatusIdle      TaskStatus = "idle"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusError     TaskStatus = "error"
)

// ActiveTaskStatuses are the statuses the scheduler picks up on every run.
var ActiveTaskStatuses = []TaskStatus{TaskStatusIdle, TaskStatusRunning}

// ParseTaskStatus converts a raw string, rejecting unknown values.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(s)
	switch st {
	case TaskStatusIdle, TaskStatusRunning, TaskStatusCompleted, TaskStatusError:
		return st, nil
	}
	return "", InvalidArgumentf("unknown task status %q", s)
}

func (s TaskStatus) IsActive() bool {
	return s == TaskStatusIdle || s == TaskStatusRunning
}

// Task is the persisted cursor for one upstream scrape task.
type Task struct {
	TaskID     string     `json:"taskId" bson:"taskId"`
	Name       string     `json:"name" bson:"name"`
	LastOffset int64      `json:"lastOffset" bson:"lastOffset"`
	Status     TaskStatus `json:"status" bson:"status"`
	LastRun    *time.Time `json:"lastRun" bson:"lastRun"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// TaskUpsert carries the fields written by a create-or-update.
// LastOffset is only written when non-nil.
type TaskUpsert struct {
	TaskID     string
	Name       string
	Status     TaskStatus
	LastOffset *int64
}
