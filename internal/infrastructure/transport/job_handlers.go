package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"jobsync/app/usecase"
	"jobsync/internal/domain/entity"
	"jobsync/internal/domain/normalizer"
)

type createJobReq struct {
	SourceTaskID   string           `json:"sourceTaskId" validate:"required"`
	JobTitle       string           `json:"jobTitle" validate:"required"`
	JobDescription string           `json:"jobDescription" validate:"required"`
	JobSalary      *string          `json:"jobSalary"`
	DatePosted     *string          `json:"datePosted"`
	RawData        entity.RawRecord `json:"rawData"`
	Processed      bool             `json:"processed"`
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

type listJobsResponse struct {
	Data       []*entity.Job `json:"data"`
	Pagination pagination    `json:"pagination"`
}

// GET /jobs?page&limit
func (h *APIHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", usecase.DefaultPageLimit)
	page, limit = usecase.ClampListParams(page, limit)

	jobs, total, err := h.jobService.List(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, "list jobs failed", err)
		return
	}
	if jobs == nil {
		jobs = []*entity.Job{}
	}
	writeJSON(w, http.StatusOK, listJobsResponse{
		Data:       jobs,
		Pagination: pagination{Page: page, Limit: limit, Total: total},
	})
}

// GET /jobs/count
func (h *APIHandler) handleCountJobs(w http.ResponseWriter, r *http.Request) {
	total, err := h.jobService.Count(r.Context())
	if err != nil {
		h.fail(w, r, "count jobs failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"total": total})
}

// GET /jobs/{id}
func (h *APIHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobService.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get job failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: job})
}

// POST /jobs
func (h *APIHandler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %w", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	in := usecase.CreateJobInput{
		SourceTaskID:   req.SourceTaskID,
		JobTitle:       req.JobTitle,
		JobDescription: req.JobDescription,
		JobSalary:      req.JobSalary,
		RawData:        req.RawData,
		Processed:      req.Processed,
	}
	if req.DatePosted != nil && strings.TrimSpace(*req.DatePosted) != "" {
		d := normalizer.ParseDate(*req.DatePosted)
		if d == nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("datePosted %q is not a date", *req.DatePosted))
			return
		}
		in.DatePosted = d
	}

	job, err := h.jobService.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create job failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: job})
}

// PUT|PATCH /jobs/{id}
func (h *APIHandler) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	patch, err := decodeJobPatch(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job, err := h.jobService.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, "update job failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: job})
}

// DELETE /jobs/{id}
// Unknown ids are not an error; the answer is 204 either way.
func (h *APIHandler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := h.jobService.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "delete job failed", err)
		return
	}
	if !deleted {
		h.logger.Debug("delete of unknown job", "id", id)
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// decodeJobPatch keeps "absent" and "null" apart so that null can clear
// the nullable fields.
func decodeJobPatch(r *http.Request) (entity.JobPatch, error) {
	var patch entity.JobPatch
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return patch, fmt.Errorf("bad request body: %w", err)
	}

	var err error
	if patch.SourceTaskID, err = optString(fields, "sourceTaskId"); err != nil {
		return patch, err
	}
	if patch.JobTitle, err = optString(fields, "jobTitle"); err != nil {
		return patch, err
	}
	if patch.JobDescription, err = optString(fields, "jobDescription"); err != nil {
		return patch, err
	}

	if raw, ok := fields["jobSalary"]; ok {
		if isNull(raw) {
			patch.ClearSalary = true
		} else {
			var v entity.Value
			if err := json.Unmarshal(raw, &v); err != nil || v.IsNull() {
				return patch, fmt.Errorf("jobSalary must be a string, a number or null")
			}
			s := v.String()
			patch.JobSalary = &s
		}
	}

	if raw, ok := fields["datePosted"]; ok {
		if isNull(raw) {
			patch.ClearDatePosted = true
		} else {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return patch, fmt.Errorf("datePosted must be a string or null")
			}
			d := normalizer.ParseDate(s)
			if d == nil {
				return patch, fmt.Errorf("datePosted %q is not a date", s)
			}
			patch.DatePosted = d
		}
	}

	if raw, ok := fields["processed"]; ok && !isNull(raw) {
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return patch, fmt.Errorf("processed must be a boolean")
		}
		patch.Processed = &b
	}
	return patch, nil
}

func optString(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	if isNull(raw) {
		return nil, fmt.Errorf("%s cannot be null", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s must be a string", key)
	}
	return &s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func queryInt(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

