package transport

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"jobsync/internal/domain/entity"
)

type taskJobsResponse struct {
	Data  []*entity.Job `json:"data"`
	Total int64         `json:"total"`
}

// GET /tasks?status=active
func (h *APIHandler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []*entity.Task
		err   error
	)
	switch status := strings.TrimSpace(r.URL.Query().Get("status")); status {
	case "":
		tasks, err = h.taskService.ListAll(r.Context())
	case "active":
		tasks, err = h.taskService.ListActive(r.Context())
	default:
		writeError(w, http.StatusBadRequest, entity.InvalidArgumentf("unsupported status filter %q", status))
		return
	}
	if err != nil {
		h.fail(w, r, "list tasks failed", err)
		return
	}
	if tasks == nil {
		tasks = []*entity.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// POST /tasks/sync
func (h *APIHandler) handleSyncTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.scheduler.SyncTasks(r.Context())
	if err != nil {
		h.fail(w, r, "sync tasks failed", err)
		return
	}
	if tasks == nil {
		tasks = []*entity.Task{}
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: tasks})
}

// GET /tasks/{taskId}
func (h *APIHandler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.taskService.Get(r.Context(), mux.Vars(r)["taskId"])
	if err != nil {
		h.fail(w, r, "get task failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: task})
}

// GET /tasks/{taskId}/jobs
func (h *APIHandler) handleTaskJobs(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]

	jobs, err := h.jobService.ListByTask(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, "list task jobs failed", err)
		return
	}
	total, err := h.jobService.CountByTask(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, "count task jobs failed", err)
		return
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	writeJSON(w, http.StatusOK, taskJobsResponse{Data: jobs, Total: total})
}

// PATCH /tasks/{taskId}/reset
func (h *APIHandler) handleResetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["taskId"]
	task, err := h.taskService.ResetOffset(r.Context(), taskID)
	if err != nil {
		h.fail(w, r, "reset task failed", err)
		return
	}
	if task != nil {
		h.logger.Info("task offset reset", "task_id", taskID)
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: task})
}
