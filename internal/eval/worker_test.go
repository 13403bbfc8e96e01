package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func newTestWorker(t *testing.T) (*Worker, *fakeJobs, *fakeRuns) {
	t.Helper()
	jobs := newFakeJobs()
	runs := &fakeRuns{}
	deps := Deps{
		Jobs:  jobs,
		Runs:  runs,
		Probe: NewCancelRegistry(jobs),
		Cfg:   config.Config{AppEnv: "test"},
	}
	return NewWorker(deps), jobs, runs
}

func claimJob(t *testing.T, jobs *fakeJobs, jobType domain.JobType, params map[string]any) domain.Job {
	t.Helper()
	ctx := context.Background()
	_, err := jobs.Create(ctx, domain.Job{JobType: jobType, Params: params})
	require.NoError(t, err)
	job, err := jobs.ClaimNextQueued(ctx)
	require.NoError(t, err)
	return job
}

func TestWorker_UnknownJobTypeFails(t *testing.T) {
	w, jobs, _ := newTestWorker(t)
	job := claimJob(t, jobs, domain.JobType("reticulate-splines"), nil)

	w.dispatch(context.Background(), job)

	got, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Equal(t, "Unknown job type", got.ErrorMessage)
}

func TestWorker_HandlerErrorFailsJob(t *testing.T) {
	w, jobs, _ := newTestWorker(t)
	// evaluate-batch without csv_content is rejected by the runner
	job := claimJob(t, jobs, domain.JobEvaluateBatch, map[string]any{})

	w.dispatch(context.Background(), job)

	got, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "csv_content")
}

func TestWorker_CancelledSentinelCancelsJobAndCascades(t *testing.T) {
	w, jobs, runs := newTestWorker(t)
	job := claimJob(t, jobs, domain.JobEvaluateBatch, nil)
	w.handlers[domain.JobEvaluateBatch] = func(_ domain.Context, _ domain.Job) (map[string]any, error) {
		return nil, domain.ErrJobCancelled
	}

	w.dispatch(context.Background(), job)

	got, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, got.Status)
	assert.Equal(t, []string{job.ID}, runs.cancelCascades)
}

func TestWorker_PanicRecoversToFailed(t *testing.T) {
	w, jobs, _ := newTestWorker(t)
	job := claimJob(t, jobs, domain.JobEvaluateBatch, nil)
	w.handlers[domain.JobEvaluateBatch] = func(_ domain.Context, _ domain.Job) (map[string]any, error) {
		panic("boom")
	}

	w.dispatch(context.Background(), job)

	got, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, got.Status)
	assert.Equal(t, "handler panic: boom", got.ErrorMessage)
}

func TestWorker_CompletedJobStoresResult(t *testing.T) {
	w, jobs, _ := newTestWorker(t)
	job := claimJob(t, jobs, domain.JobEvaluateBatch, nil)
	w.handlers[domain.JobEvaluateBatch] = func(_ domain.Context, _ domain.Job) (map[string]any, error) {
		return map[string]any{"run_id": "run-1"}, nil
	}

	w.dispatch(context.Background(), job)

	got, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	assert.Equal(t, "run-1", got.Result["run_id"])
}

func TestWorker_CancelJob_Queued(t *testing.T) {
	w, jobs, runs := newTestWorker(t)
	ctx := context.Background()
	id, err := jobs.Create(ctx, domain.Job{JobType: domain.JobEvaluateBatch})
	require.NoError(t, err)

	require.NoError(t, w.CancelJob(ctx, id))

	status, err := jobs.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, status)
	assert.True(t, w.deps.Probe.IsCancelled(ctx, id))
	assert.Equal(t, []string{id}, runs.cancelCascades)
}

func TestWorker_CancelJob_TerminalConflicts(t *testing.T) {
	w, jobs, _ := newTestWorker(t)
	ctx := context.Background()
	id, err := jobs.Create(ctx, domain.Job{JobType: domain.JobEvaluateBatch})
	require.NoError(t, err)
	require.NoError(t, jobs.MarkCompleted(ctx, id, nil))

	err = w.CancelJob(ctx, id)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestWorker_CancelJob_CancelledIsIdempotent(t *testing.T) {
	w, jobs, runs := newTestWorker(t)
	ctx := context.Background()
	id, err := jobs.Create(ctx, domain.Job{JobType: domain.JobEvaluateBatch})
	require.NoError(t, err)

	require.NoError(t, w.CancelJob(ctx, id))
	require.NoError(t, w.CancelJob(ctx, id), "re-cancel must be idempotent")
	// the run cascade re-applies on every cancel call
	assert.Equal(t, []string{id, id}, runs.cancelCascades)
}

func TestWorker_CancelJob_NotFound(t *testing.T) {
	w, _, _ := newTestWorker(t)
	err := w.CancelJob(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
