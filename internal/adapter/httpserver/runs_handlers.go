package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/usecase"
)

// runFilterFromQuery builds the repository filter from query params. The
// legacy command alias maps onto eval_type when eval_type itself is absent.
func runFilterFromQuery(r *http.Request) (domain.RunFilter, error) {
	q := r.URL.Query()
	f := domain.RunFilter{
		AppID:       q.Get("app_id"),
		ListingID:   q.Get("listing_id"),
		SessionID:   q.Get("session_id"),
		EvaluatorID: q.Get("evaluator_id"),
		JobID:       q.Get("job_id"),
	}
	if et := q.Get("eval_type"); et != "" {
		f.EvalType = domain.EvalType(et)
	} else if cmd := q.Get("command"); cmd != "" {
		f.EvalType = domain.MapLegacyCommand(cmd)
	}
	if st := q.Get("status"); st != "" {
		f.Status = domain.RunStatus(st)
	}
	limit, offset, err := pagination(r, 50)
	if err != nil {
		return domain.RunFilter{}, err
	}
	f.Limit, f.Offset = limit, offset
	return f, nil
}

// ListRunsHandler lists eval runs newest first.
func (s *Server) ListRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := runFilterFromQuery(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		runs, err := s.Runs.List(r.Context(), f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]map[string]any, 0, len(runs))
		for _, run := range runs {
			views = append(views, toRunView(run))
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": views})
	}
}

// GetRunHandler returns one run.
func (s *Server) GetRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := s.Runs.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRunView(run))
	}
}

// DeleteRunHandler deletes a run and its cascaded children. Deleting a
// running run is a 400.
func (s *Server) DeleteRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Runs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": 1})
	}
}

// DeleteRunsHandler bulk-deletes runs matching the filter; running runs are
// skipped by the repository.
func (s *Server) DeleteRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := runFilterFromQuery(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		n, err := s.Runs.DeleteAll(r.Context(), f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}

// PreviewHandler parses an uploaded CSV and returns dataset statistics
// without persisting anything.
func (s *Server) PreviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := csvBody(w, r, s.Cfg.MaxUploadMB)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		ds, err := usecase.LoadCSV(strings.NewReader(body))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		stats := ds.Statistics()
		resp := map[string]any{
			"totalMessages":      stats.TotalMessages,
			"totalThreads":       stats.TotalThreads,
			"totalUsers":         stats.TotalUsers,
			"threadIds":          ds.ThreadIDs(),
			"intentDistribution": stats.IntentDistribution,
			"messagesWithErrors": stats.ErrorCount,
			"messagesWithImages": stats.ImageCount,
			// snake_case aliases for the batch dashboard
			"total_messages":       stats.TotalMessages,
			"total_threads":        stats.TotalThreads,
			"total_users":          stats.TotalUsers,
			"thread_ids":           ds.ThreadIDs(),
			"intent_distribution":  stats.IntentDistribution,
			"messages_with_errors": stats.ErrorCount,
			"messages_with_images": stats.ImageCount,
		}
		if stats.DateRange != nil {
			resp["dateRange"] = stats.DateRange
			resp["date_range"] = stats.DateRange
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// csvBody reads CSV content from a multipart "file" field or the raw body.
func csvBody(w http.ResponseWriter, r *http.Request, maxMB int64) (string, error) {
	maxBytes := maxMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("%w: file field required", domain.ErrInvalidArgument)
		}
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("%w: read file: %v", domain.ErrInvalidArgument, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrInvalidArgument, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
	}
	return string(data), nil
}

// StatsSummaryHandler aggregates run counts and verdict distributions.
func (s *Server) StatsSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.Runs.StatsSummary(r.Context(), appID(r))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// TrendsHandler returns per-day verdict counts over a bounded window.
func (s *Server) TrendsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 30
		if raw := r.URL.Query().Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 365 {
				writeError(w, r, fmt.Errorf("%w: days must be in [1,365]", domain.ErrInvalidArgument), nil)
				return
			}
			days = n
		}
		trends, err := s.Runs.Trends(r.Context(), appID(r), days)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"days": days, "trends": trends})
	}
}

// apiLogFilterFromQuery builds an api-log filter from query params.
func apiLogFilterFromQuery(r *http.Request) (domain.ApiLogFilter, error) {
	limit, offset, err := pagination(r, 50)
	if err != nil {
		return domain.ApiLogFilter{}, err
	}
	q := r.URL.Query()
	return domain.ApiLogFilter{
		RunID:    q.Get("run_id"),
		ThreadID: q.Get("thread_id"),
		Provider: q.Get("provider"),
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// ListLogsHandler lists LLM call logs newest first.
func (s *Server) ListLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := apiLogFilterFromQuery(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		logs, err := s.ApiLogs.List(r.Context(), f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]apiLogView, 0, len(logs))
		for _, l := range logs {
			views = append(views, toApiLogView(l))
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": views})
	}
}

// DeleteLogsHandler bulk-deletes LLM call logs matching the filter.
func (s *Server) DeleteLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := apiLogFilterFromQuery(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		n, err := s.ApiLogs.Delete(r.Context(), f)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
	}
}

// RunLogsHandler lists the LLM call logs of one run.
func (s *Server) RunLogsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := s.ApiLogs.List(r.Context(), domain.ApiLogFilter{RunID: chi.URLParam(r, "id")})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]apiLogView, 0, len(logs))
		for _, l := range logs {
			views = append(views, toApiLogView(l))
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": views})
	}
}

// RunThreadsHandler lists the per-thread child rows of a batch run.
func (s *Server) RunThreadsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evals, err := s.ThreadEvals.ListByRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]map[string]any, 0, len(evals))
		for _, te := range evals {
			views = append(views, toThreadEvalView(te))
		}
		writeJSON(w, http.StatusOK, map[string]any{"threads": views})
	}
}

// RunAdversarialHandler lists the per-case child rows of an adversarial run.
func (s *Server) RunAdversarialHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evals, err := s.AdvEvals.ListByRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]map[string]any, 0, len(evals))
		for _, ae := range evals {
			views = append(views, toAdvEvalView(ae))
		}
		writeJSON(w, http.StatusOK, map[string]any{"evaluations": views})
	}
}

// ThreadHistoryHandler lists every evaluation a thread has received, across
// runs, newest first.
func (s *Server) ThreadHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evals, err := s.ThreadEvals.ThreadHistory(r.Context(), chi.URLParam(r, "thread_id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		views := make([]map[string]any, 0, len(evals))
		for _, te := range evals {
			views = append(views, toThreadEvalView(te))
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": views})
	}
}
