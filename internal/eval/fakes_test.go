package eval

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// fakeJobs is an in-memory JobRepository for worker and registry tests.
type fakeJobs struct {
	mu     sync.Mutex
	seq    int
	jobs   map[string]*domain.Job
	failed map[string]string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*domain.Job{}, failed: map[string]string{}}
}

func (f *fakeJobs) Create(_ domain.Context, j domain.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	j.ID = fmt.Sprintf("job-%d", f.seq)
	if j.Status == "" {
		j.Status = domain.JobQueued
	}
	f.jobs[j.ID] = &j
	return j.ID, nil
}

func (f *fakeJobs) Get(_ domain.Context, id string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return *j, nil
}

func (f *fakeJobs) List(_ domain.Context, status string, limit, offset int) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.jobs))
	for id := range f.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		if status == "" || string(f.jobs[id].Status) == status {
			out = append(out, *f.jobs[id])
		}
	}
	return out, nil
}

func (f *fakeJobs) ClaimNextQueued(_ domain.Context) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.jobs))
	for id := range f.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if f.jobs[id].Status == domain.JobQueued {
			f.jobs[id].Status = domain.JobRunning
			return *f.jobs[id], nil
		}
	}
	return domain.Job{}, domain.ErrNotFound
}

func (f *fakeJobs) MarkCompleted(_ domain.Context, id string, result map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = domain.JobCompleted
	j.Result = result
	return nil
}

func (f *fakeJobs) MarkFailed(_ domain.Context, id, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = domain.JobFailed
	j.ErrorMessage = errMsg
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobs) MarkCancelled(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch j.Status {
	case domain.JobCompleted, domain.JobFailed:
		return fmt.Errorf("%w: job is %s", domain.ErrConflict, j.Status)
	}
	j.Status = domain.JobCancelled
	return nil
}

func (f *fakeJobs) UpdateProgress(_ domain.Context, id string, p domain.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.Progress = p
	}
	return nil
}

func (f *fakeJobs) Status(_ domain.Context, id string) (domain.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return j.Status, nil
}

func (f *fakeJobs) FailStuckRunning(_ domain.Context, _ int) (int64, error) { return 0, nil }

// fakeRuns records run-level calls. Create enforces the same shape
// invariants as the SQL repo so a runner building an inconsistent row fails
// in tests the way it would against the database.
type fakeRuns struct {
	mu             sync.Mutex
	seq            int
	created        []domain.EvalRun
	finalized      []domain.RunStatus
	cancelCascades []string
}

func (f *fakeRuns) Create(_ domain.Context, run domain.EvalRun) (string, error) {
	if run.EvalType != domain.EvalBatchThread && run.EvalType != domain.EvalBatchAdversarial {
		hasListing := run.ListingID != nil && *run.ListingID != ""
		hasSession := run.SessionID != nil && *run.SessionID != ""
		if hasListing == hasSession {
			return "", fmt.Errorf("%w: exactly one of listing_id or session_id required", domain.ErrInvalidArgument)
		}
	}
	if run.EvalType == domain.EvalCustom && (run.EvaluatorID == nil || *run.EvaluatorID == "") {
		return "", fmt.Errorf("%w: evaluator_id required for custom runs", domain.ErrInvalidArgument)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	run.ID = fmt.Sprintf("run-%d", f.seq)
	f.created = append(f.created, run)
	return run.ID, nil
}
func (f *fakeRuns) Get(_ domain.Context, _ string) (domain.EvalRun, error) {
	return domain.EvalRun{}, domain.ErrNotFound
}
func (f *fakeRuns) List(_ domain.Context, _ domain.RunFilter) ([]domain.EvalRun, error) {
	return nil, nil
}
func (f *fakeRuns) MarkRunning(_ domain.Context, _ string) error { return nil }
func (f *fakeRuns) Finalize(_ domain.Context, _ string, status domain.RunStatus, _ string, _, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, status)
	return nil
}
func (f *fakeRuns) Delete(_ domain.Context, _ string) error                   { return nil }
func (f *fakeRuns) DeleteAll(_ domain.Context, _ domain.RunFilter) (int64, error) { return 0, nil }
func (f *fakeRuns) CancelRunningByJobID(_ domain.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCascades = append(f.cancelCascades, jobID)
	return nil
}
func (f *fakeRuns) StatsSummary(_ domain.Context, _ string) (map[string]any, error) {
	return map[string]any{}, nil
}
func (f *fakeRuns) Trends(_ domain.Context, _ string, _ int) ([]map[string]any, error) {
	return nil, nil
}

// staticProbe reports a fixed cancelled set.
type staticProbe struct{ cancelled map[string]bool }

func (p staticProbe) IsCancelled(_ domain.Context, jobID string) bool { return p.cancelled[jobID] }
