package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"jobsync/app/usecase"
	"jobsync/internal/domain/entity"
	"jobsync/internal/infrastructure/metrics"
)

type APIHandler struct {
	jobService  usecase.JobUsecase
	taskService usecase.TaskUsecase
	scheduler   usecase.SchedulerUsecase
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewAPIHandler(
	jobService usecase.JobUsecase,
	taskService usecase.TaskUsecase,
	scheduler usecase.SchedulerUsecase,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		jobService:  jobService,
		taskService: taskService,
		scheduler:   scheduler,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// withMetrics records request metrics labelled by route template.
func (h *APIHandler) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		metrics.ObserveHTTPRequest(route, r.Method, rw.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *APIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/jobs", h.withMetrics(h.handleListJobs)).Methods(http.MethodGet)
	r.HandleFunc("/jobs", h.withMetrics(h.handleCreateJob)).Methods(http.MethodPost)
	r.HandleFunc("/jobs/count", h.withMetrics(h.handleCountJobs)).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", h.withMetrics(h.handleGetJob)).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", h.withMetrics(h.handleUpdateJob)).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/jobs/{id}", h.withMetrics(h.handleDeleteJob)).Methods(http.MethodDelete)

	r.HandleFunc("/tasks", h.withMetrics(h.handleListTasks)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/sync", h.withMetrics(h.handleSyncTasks)).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskId}", h.withMetrics(h.handleGetTask)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{taskId}/jobs", h.withMetrics(h.handleTaskJobs)).Methods(http.MethodGet)
	r.HandleFunc("/tasks/{taskId}/reset", h.withMetrics(h.handleResetTask)).Methods(http.MethodPatch)

	r.HandleFunc("/scheduler/run", h.withMetrics(h.handleRunScheduler)).Methods(http.MethodPost)
	r.HandleFunc("/scheduler/status", h.withMetrics(h.handleSchedulerStatus)).Methods(http.MethodGet)

	r.HandleFunc("/health", h.withMetrics(h.handleHealth)).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", metrics.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusFor maps the error taxonomy onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrSyncInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail logs server-side failures and writes the mapped status.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", r.URL.Path, "err", err)
	} else {
		h.logger.Debug(msg, "path", r.URL.Path, "err", err)
	}
	writeError(w, code, err)
}

type dataResponse struct {
	Data interface{} `json:"data"`
}

// GET /health
func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"ok": true,
		"ts": time.Now().UTC(),
	}
	writeJSON(w, http.StatusOK, status)
}

// POST /scheduler/run
func (h *APIHandler) handleRunScheduler(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.Trigger() {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Sync already in progress"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Sync started"})
}

// GET /scheduler/status
func (h *APIHandler) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}
