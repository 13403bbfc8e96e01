package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

type fakeJobRepo struct {
	jobs map[string]domain.Job
	seq  int
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]domain.Job{}}
}

func (f *fakeJobRepo) Create(_ domain.Context, j domain.Job) (string, error) {
	f.seq++
	j.ID = fmt.Sprintf("job-%d", f.seq)
	j.Status = domain.JobQueued
	j.CreatedAt = time.Now()
	f.jobs[j.ID] = j
	return j.ID, nil
}

func (f *fakeJobRepo) Get(_ domain.Context, id string) (domain.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeJobRepo) List(_ domain.Context, status string, limit, offset int) ([]domain.Job, error) {
	out := []domain.Job{}
	for _, j := range f.jobs {
		if status == "" || string(j.Status) == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) ClaimNextQueued(domain.Context) (domain.Job, error) {
	return domain.Job{}, domain.ErrNotFound
}

func (f *fakeJobRepo) MarkCompleted(_ domain.Context, id string, result map[string]any) error {
	j := f.jobs[id]
	j.Status = domain.JobCompleted
	j.Result = result
	f.jobs[id] = j
	return nil
}

func (f *fakeJobRepo) MarkFailed(_ domain.Context, id, errMsg string) error {
	j := f.jobs[id]
	j.Status = domain.JobFailed
	j.ErrorMessage = errMsg
	f.jobs[id] = j
	return nil
}

func (f *fakeJobRepo) MarkCancelled(_ domain.Context, id string) error {
	j := f.jobs[id]
	j.Status = domain.JobCancelled
	f.jobs[id] = j
	return nil
}

func (f *fakeJobRepo) UpdateProgress(_ domain.Context, id string, p domain.Progress) error {
	return nil
}

func (f *fakeJobRepo) Status(_ domain.Context, id string) (domain.JobStatus, error) {
	j, ok := f.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return j.Status, nil
}

func (f *fakeJobRepo) FailStuckRunning(domain.Context, int) (int64, error) { return 0, nil }

type fakeCanceller struct {
	err       error
	cancelled []string
}

func (f *fakeCanceller) CancelJob(_ domain.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newTestServer() (*Server, *fakeJobRepo, *fakeCanceller) {
	jobs := newFakeJobRepo()
	canceller := &fakeCanceller{}
	s := &Server{
		Cfg:       config.Config{MaxUploadMB: 10},
		Jobs:      jobs,
		Canceller: canceller,
	}
	return s, jobs, canceller
}

func jobsRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/jobs", s.CreateJobHandler())
	r.Get("/api/jobs", s.ListJobsHandler())
	r.Get("/api/jobs/{id}", s.GetJobHandler())
	r.Post("/api/jobs/{id}/cancel", s.CancelJobHandler())
	r.Post("/api/eval-runs/preview", s.PreviewHandler())
	return r
}

func TestCreateJobHandler(t *testing.T) {
	s, jobs, _ := newTestServer()
	body := `{"jobType":"evaluate-batch","params":{"csv_content":"thread_id\nt1","run_name":"nightly"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	req.Header.Set("X-User-Id", "alice")
	rec := httptest.NewRecorder()

	jobsRouter(s).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])

	params := resp["params"].(map[string]any)
	assert.NotContains(t, params, "csv_content", "csv never echoed back")
	assert.Equal(t, "nightly", params["run_name"])

	stored := jobs.jobs[resp["id"].(string)]
	assert.Equal(t, "thread_id\nt1", stored.Params["csv_content"], "csv kept for the worker")
	assert.Equal(t, "default", stored.Params["app_id"])
	assert.Equal(t, "alice", stored.Params["user_id"])
}

func TestCreateJobHandler_Rejections(t *testing.T) {
	s, _, _ := newTestServer()
	router := jobsRouter(s)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"jobType":`},
		{"missing jobType", `{"params":{}}`},
		{"unknown jobType", `{"jobType":"reticulate-splines"}`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(tc.body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
	}
}

func TestGetJobHandler_NotFound(t *testing.T) {
	s, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	jobsRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsHandler_RejectsUnknownStatus(t *testing.T) {
	s, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	jobsRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?status=paused", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJobHandler(t *testing.T) {
	s, _, canceller := newTestServer()
	rec := httptest.NewRecorder()
	jobsRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"job-1"}, canceller.cancelled)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp["status"])
}

func TestCancelJobHandler_TerminalConflict(t *testing.T) {
	s, _, canceller := newTestServer()
	canceller.err = fmt.Errorf("cancel: %w", domain.ErrConflict)
	rec := httptest.NewRecorder()
	jobsRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/cancel", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "STATE_CONFLICT", decodeError(t, rec).Code)
}

func TestPagination(t *testing.T) {
	limit, offset, err := pagination(httptest.NewRequest(http.MethodGet, "/?limit=25&offset=50", nil), 50)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)
	assert.Equal(t, 50, offset)

	limit, offset, err = pagination(httptest.NewRequest(http.MethodGet, "/", nil), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)
	assert.Zero(t, offset)

	for _, q := range []string{"limit=0", "limit=201", "limit=abc", "offset=-1"} {
		_, _, err := pagination(httptest.NewRequest(http.MethodGet, "/?"+q, nil), 50)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, q)
	}
}

func TestPreviewHandler_RawBody(t *testing.T) {
	s, _, _ := newTestServer()
	csv := "thread_id,user_id,sender,message,intent\nt1,u1,user,hi,greet\nt1,u1,bot,hello,greet\n"
	rec := httptest.NewRecorder()
	jobsRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/eval-runs/preview", strings.NewReader(csv)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["totalMessages"])
	assert.Equal(t, resp["totalMessages"], resp["total_messages"])
	assert.Equal(t, []any{"t1"}, resp["threadIds"])
	assert.Equal(t, map[string]any{"greet": float64(2)}, resp["intentDistribution"])
	assert.NotContains(t, resp, "dateRange", "no timestamps in the upload")
}

func TestPreviewHandler_EmptyBody(t *testing.T) {
	s, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	jobsRouter(s).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/eval-runs/preview", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
