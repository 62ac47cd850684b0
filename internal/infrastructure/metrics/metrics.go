package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync runs
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_sync_runs_total",
			Help: "Sync runs by trigger and result",
		},
		[]string{"trigger", "result"}, // trigger: schedule|manual|direct, result: ok|error|skipped
	)
	SyncRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobsync_sync_running",
			Help: "1 while a sync run holds the run-lock",
		},
	)
	SyncDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobsync_sync_duration_seconds",
			Help:    "Histogram of sync run durations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s..256s
		},
	)

	// Tasks
	TasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_tasks_processed_total",
			Help: "Tasks processed by final status",
		},
		[]string{"status"}, // idle|completed|error
	)
	TaskStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_task_status_changes_total",
			Help: "Number of task status transitions",
		},
		[]string{"to"},
	)

	// Jobs
	JobsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobsync_jobs_created_total",
			Help: "Total number of job records inserted",
		},
	)
	JobsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_jobs_ingested_total",
			Help: "Rows seen by bulk insert by outcome",
		},
		[]string{"outcome"}, // created|skipped|failed
	)

	// Upstream
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_upstream_requests_total",
			Help: "Requests to the data source by endpoint and result",
		},
		[]string{"source", "endpoint", "result"},
	)

	// DB ops
	DBOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_db_ops_total",
			Help: "Database operations performed",
		},
		[]string{"op"}, // op: get|insert|put|upsert|delete|list|count
	)

	// HTTP
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)
	HTTPDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobsync_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	HTTPErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_http_errors_total",
			Help: "HTTP responses with status >= 400",
		},
		[]string{"route", "code"},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Sync
		SyncRuns,
		SyncRunning,
		SyncDurationSeconds,
		// Tasks
		TasksProcessed,
		TaskStatusChanges,
		// Jobs
		JobsCreated,
		JobsIngested,
		// Upstream
		UpstreamRequests,
		// DB
		DBOps,
		// HTTP
		HTTPRequests,
		HTTPDurationSeconds,
		HTTPErrors,
		// Errors
		Errors,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer serves /metrics on addr until ctx is done.
func StartMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Sync
func IncSyncRun(trigger, result string) {
	SyncRuns.WithLabelValues(trigger, result).Inc()
}

func SetSyncRunning(running bool) {
	if running {
		SyncRunning.Set(1)
		return
	}
	SyncRunning.Set(0)
}

func ObserveSyncDuration(d time.Duration) {
	SyncDurationSeconds.Observe(d.Seconds())
}

// Tasks
func IncTaskProcessed(status string) {
	TasksProcessed.WithLabelValues(status).Inc()
}

func IncTaskStatusChange(to string) {
	TaskStatusChanges.WithLabelValues(to).Inc()
}

// Jobs
func IncJobsCreated() {
	JobsCreated.Inc()
}

func AddJobsIngested(outcome string, n int) {
	if n <= 0 {
		return
	}
	JobsIngested.WithLabelValues(outcome).Add(float64(n))
}

// Upstream
func IncUpstreamRequest(source, endpoint, result string) {
	UpstreamRequests.WithLabelValues(source, endpoint, result).Inc()
}

// DB ops
func IncDBOp(op string) {
	DBOps.WithLabelValues(op).Inc()
}

// HTTP
func ObserveHTTPRequest(route, method string, code int, d time.Duration) {
	HTTPRequests.WithLabelValues(route, method, codeLabel(code)).Inc()
	HTTPDurationSeconds.WithLabelValues(route, method).Observe(d.Seconds())
	if code >= 400 {
		HTTPErrors.WithLabelValues(route, codeLabel(code)).Inc()
	}
}

func codeLabel(code int) string {
	return strconv.Itoa(code)
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
