package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

var validJobTypes = map[domain.JobType]bool{
	domain.JobEvaluateBatch:       true,
	domain.JobEvaluateAdversarial: true,
	domain.JobEvaluateCustom:      true,
	domain.JobEvaluateCustomBatch: true,
	domain.JobEvaluateVoiceRx:     true,
}

var validJobStatuses = map[string]bool{
	string(domain.JobQueued):    true,
	string(domain.JobRunning):   true,
	string(domain.JobCompleted): true,
	string(domain.JobFailed):    true,
	string(domain.JobCancelled): true,
}

// CreateJobHandler enqueues a job. The worker picks it up on its next poll.
func (s *Server) CreateJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.MaxUploadMB*1024*1024)
		var req struct {
			JobType string         `json:"jobType" validate:"required"`
			Params  map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		jobType := domain.JobType(req.JobType)
		if !validJobTypes[jobType] {
			writeError(w, r, fmt.Errorf("%w: unknown jobType %q", domain.ErrInvalidArgument, req.JobType), nil)
			return
		}
		params := req.Params
		if params == nil {
			params = map[string]any{}
		}
		if params["app_id"] == nil {
			params["app_id"] = appID(r)
		}
		if params["user_id"] == nil {
			params["user_id"] = userID(r)
		}
		id, err := s.Jobs.Create(r.Context(), domain.Job{
			JobType: jobType,
			Status:  domain.JobQueued,
			Params:  params,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		job, err := s.Jobs.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toJobView(job))
	}
}

// ListJobsHandler lists jobs newest first with optional status filter.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && !validJobStatuses[status] {
			writeError(w, r, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, status), nil)
			return
		}
		limit, offset, err := pagination(r, 50)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		jobs, err := s.Jobs.List(r.Context(), status, limit, offset)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]jobView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, toJobView(j))
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
	}
}

// GetJobHandler returns one job with sanitized params.
func (s *Server) GetJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toJobView(job))
	}
}

// CancelJobHandler cancels a queued or running job. Terminal jobs other than
// cancelled are a 400; re-cancelling a cancelled job is idempotent.
func (s *Server) CancelJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.Canceller.CancelJob(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.JobCancelled)})
	}
}

// pagination reads limit/offset query params. Limit is clamped to [1,200].
func pagination(r *http.Request, defaultLimit int) (int, int, error) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return 0, 0, fmt.Errorf("%w: limit must be in [1,200]", domain.ErrInvalidArgument)
		}
		limit = n
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("%w: offset must be >= 0", domain.ErrInvalidArgument)
		}
		offset = n
	}
	return limit, offset, nil
}
