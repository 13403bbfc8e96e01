package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// JobRepo persists and loads jobs from PostgreSQL using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id, job_type, status, params, progress, result, COALESCE(error_message,''), created_at, started_at, completed_at`

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	var params, progress, result []byte
	if err := row.Scan(&j.ID, &j.JobType, &j.Status, &params, &progress, &result, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		return domain.Job{}, err
	}
	j.Params = scanJSONMap(params)
	j.Result = scanJSONMap(result)
	if len(progress) > 0 {
		_ = json.Unmarshal(progress, &j.Progress)
	}
	return j, nil
}

// Create inserts a new queued job and returns its id.
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = domain.JobQueued
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO jobs (id, job_type, status, params, progress, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.Pool.Exec(ctx, q, id, j.JobType, j.Status, jsonVal(j.Params), jsonValAny(j.Progress), created)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return id, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1`, id)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// List returns jobs newest-first, optionally filtered by status.
func (r *JobRepo) List(ctx domain.Context, status string, limit, offset int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.List")
	defer span.End()
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, status)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.list: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ClaimNextQueued moves the oldest queued job to running in one statement.
// SKIP LOCKED keeps concurrent pollers from double-claiming.
func (r *JobRepo) ClaimNextQueued(ctx domain.Context) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.ClaimNextQueued")
	defer span.End()
	q := `UPDATE jobs SET status='running', started_at=$1
		WHERE id = (
			SELECT id FROM jobs WHERE status='queued'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns
	row := r.Pool.QueryRow(ctx, q, time.Now().UTC())
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.claim: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.claim: %w", err)
	}
	return j, nil
}

// MarkCompleted finalizes a successful job with its result payload.
func (r *JobRepo) MarkCompleted(ctx domain.Context, id string, result map[string]any) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkCompleted")
	defer span.End()
	done := domain.Progress{Current: 1, Total: 1, Message: "Done"}
	q := `UPDATE jobs SET status='completed', result=$2, progress=$3, completed_at=$4 WHERE id=$1 AND status='running'`
	_, err := r.Pool.Exec(ctx, q, id, jsonVal(result), jsonValAny(done), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	return nil
}

// MarkFailed finalizes a job with a truncated error message.
func (r *JobRepo) MarkFailed(ctx domain.Context, id, errMsg string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkFailed")
	defer span.End()
	errMsg = truncate(errMsg, 2000)
	q := `UPDATE jobs SET status='failed', error_message=$2, completed_at=$3 WHERE id=$1 AND status IN ('queued','running')`
	_, err := r.Pool.Exec(ctx, q, id, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.fail: %w", err)
	}
	return nil
}

// MarkCancelled moves a queued or running job to cancelled.
func (r *JobRepo) MarkCancelled(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkCancelled")
	defer span.End()
	q := `UPDATE jobs SET status='cancelled', completed_at=$2 WHERE id=$1 AND status IN ('queued','running')`
	_, err := r.Pool.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.cancel: %w", err)
	}
	return nil
}

// UpdateProgress writes the progress snapshot of a running job.
func (r *JobRepo) UpdateProgress(ctx domain.Context, id string, p domain.Progress) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.UpdateProgress")
	defer span.End()
	q := `UPDATE jobs SET progress=$2 WHERE id=$1 AND status='running'`
	_, err := r.Pool.Exec(ctx, q, id, jsonValAny(p))
	if err != nil {
		return fmt.Errorf("op=job.progress: %w", err)
	}
	return nil
}

// Status reads just the status column.
func (r *JobRepo) Status(ctx domain.Context, id string) (domain.JobStatus, error) {
	var s domain.JobStatus
	err := r.Pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id=$1`, id).Scan(&s)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", fmt.Errorf("op=job.status: %w", domain.ErrNotFound)
		}
		return "", fmt.Errorf("op=job.status: %w", err)
	}
	return s, nil
}

// FailStuckRunning fails running jobs whose start time is older than the
// threshold; used at worker startup after an unclean shutdown.
func (r *JobRepo) FailStuckRunning(ctx domain.Context, olderThanSeconds int) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FailStuckRunning")
	defer span.End()
	cutoff := time.Now().UTC().Add(-time.Duration(olderThanSeconds) * time.Second)
	q := `UPDATE jobs SET status='failed', error_message='worker restart', completed_at=$1
		WHERE status='running' AND started_at < $2`
	tag, err := r.Pool.Exec(ctx, q, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=job.fail_stuck: %w", err)
	}
	return tag.RowsAffected(), nil
}
