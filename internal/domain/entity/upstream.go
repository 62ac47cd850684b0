package entity

import "time"

// Upstream shapes returned by a DataSource, independent of the provider.

type TaskGroup struct {
	ID        string    `json:"groupId"`
	Name      string    `json:"groupName"`
	CreatedAt time.Time `json:"createdAt"`
}

type TaskGroupList struct {
	Total  int         `json:"total"`
	Groups []TaskGroup `json:"groups"`
}

type UpstreamTask struct {
	ID        string    `json:"taskId"`
	Name      string    `json:"taskName"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	LastRunAt time.Time `json:"lastRunAt"`
}

type TaskList struct {
	Total int            `json:"total"`
	Tasks []UpstreamTask `json:"tasks"`
}

type TaskData struct {
	Total int64       `json:"total"`
	Rows  []RawRecord `json:"rows"`
}

const (
	MaxPageSize = 1000
	// SyncBatchSize is the page size the scheduler requests per task and run.
	SyncBatchSize = 100
)

// ClampPage floors offset at 0 and bounds size to [1, MaxPageSize].
func ClampPage(offset int64, size int) (int64, int) {
	if offset < 0 {
		offset = 0
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return offset, size
}
