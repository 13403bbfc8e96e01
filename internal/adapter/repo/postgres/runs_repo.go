package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// EvalRunRepo persists evaluation runs.
type EvalRunRepo struct{ Pool PgxPool }

// NewEvalRunRepo constructs an EvalRunRepo with the given pool.
func NewEvalRunRepo(p PgxPool) *EvalRunRepo { return &EvalRunRepo{Pool: p} }

const runColumns = `id, app_id, eval_type, listing_id, session_id, evaluator_id, job_id, status,
	COALESCE(error_message,''), started_at, completed_at, duration_ms, COALESCE(provider,''),
	COALESCE(model,''), config, result, summary, batch_metadata, created_at`

func scanRun(row pgx.Row) (domain.EvalRun, error) {
	var r domain.EvalRun
	var config, result, summary, meta []byte
	if err := row.Scan(&r.ID, &r.AppID, &r.EvalType, &r.ListingID, &r.SessionID, &r.EvaluatorID,
		&r.JobID, &r.Status, &r.ErrorMessage, &r.StartedAt, &r.CompletedAt, &r.DurationMS,
		&r.Provider, &r.Model, &config, &result, &summary, &meta, &r.CreatedAt); err != nil {
		return domain.EvalRun{}, err
	}
	r.Config = scanJSONMap(config)
	r.Result = scanJSONMap(result)
	r.Summary = scanJSONMap(summary)
	r.BatchMetadata = scanJSONMap(meta)
	return r, nil
}

// Create inserts a new run and returns its id. The non-batch invariants
// (exactly one owner; custom requires evaluator) are enforced here so no
// caller can persist an inconsistent row.
func (r *EvalRunRepo) Create(ctx domain.Context, run domain.EvalRun) (string, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.Create")
	defer span.End()
	if run.EvalType != domain.EvalBatchThread && run.EvalType != domain.EvalBatchAdversarial {
		hasListing := run.ListingID != nil && *run.ListingID != ""
		hasSession := run.SessionID != nil && *run.SessionID != ""
		if hasListing == hasSession {
			return "", fmt.Errorf("op=run.create: %w: exactly one of listing_id or session_id required", domain.ErrInvalidArgument)
		}
	}
	if run.EvalType == domain.EvalCustom && (run.EvaluatorID == nil || *run.EvaluatorID == "") {
		return "", fmt.Errorf("op=run.create: %w: evaluator_id required for custom runs", domain.ErrInvalidArgument)
	}
	id := run.ID
	if id == "" {
		id = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = domain.RunPending
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO eval_runs (id, app_id, eval_type, listing_id, session_id, evaluator_id, job_id,
		status, started_at, provider, model, config, batch_metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := r.Pool.Exec(ctx, q, id, run.AppID, run.EvalType, run.ListingID, run.SessionID,
		run.EvaluatorID, run.JobID, run.Status, run.StartedAt, run.Provider, run.Model,
		jsonVal(run.Config), jsonVal(run.BatchMetadata), created)
	if err != nil {
		return "", fmt.Errorf("op=run.create: %w", err)
	}
	return id, nil
}

// Get loads a run by id.
func (r *EvalRunRepo) Get(ctx domain.Context, id string) (domain.EvalRun, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM eval_runs WHERE id=$1`, id)
	run, err := scanRun(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.EvalRun{}, fmt.Errorf("op=run.get: %w", domain.ErrNotFound)
		}
		return domain.EvalRun{}, fmt.Errorf("op=run.get: %w", err)
	}
	return run, nil
}

func runFilterClause(f domain.RunFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AppID != "" {
		add("app_id=$%d", f.AppID)
	}
	if f.EvalType != "" {
		add("eval_type=$%d", f.EvalType)
	}
	if f.ListingID != "" {
		add("listing_id=$%d", f.ListingID)
	}
	if f.SessionID != "" {
		add("session_id=$%d", f.SessionID)
	}
	if f.EvaluatorID != "" {
		add("evaluator_id=$%d", f.EvaluatorID)
	}
	if f.JobID != "" {
		add("job_id=$%d", f.JobID)
	}
	if f.Status != "" {
		add("status=$%d", f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns runs newest-first under the filter.
func (r *EvalRunRepo) List(ctx domain.Context, f domain.RunFilter) ([]domain.EvalRun, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.List")
	defer span.End()
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	where, args := runFilterClause(f)
	q := `SELECT ` + runColumns + ` FROM eval_runs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=run.list: %w", err)
	}
	defer rows.Close()
	var out []domain.EvalRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("op=run.list: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// MarkRunning transitions pending -> running and stamps started_at.
func (r *EvalRunRepo) MarkRunning(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.MarkRunning")
	defer span.End()
	q := `UPDATE eval_runs SET status='running', started_at=$2 WHERE id=$1 AND status='pending'`
	_, err := r.Pool.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.mark_running: %w", err)
	}
	return nil
}

// Finalize writes a terminal status plus result/summary, completed_at and
// duration_ms computed from started_at.
func (r *EvalRunRepo) Finalize(ctx domain.Context, id string, status domain.RunStatus, errMsg string, result, summary map[string]any) error {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.Finalize")
	defer span.End()
	errMsg = truncate(errMsg, 2000)
	q := `UPDATE eval_runs SET status=$2, error_message=$3,
		result=COALESCE($4, result), summary=COALESCE($5, summary),
		completed_at=$6,
		duration_ms=(EXTRACT(EPOCH FROM ($6::timestamptz - COALESCE(started_at, created_at))) * 1000)::bigint
		WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, status, errMsg, jsonVal(result), jsonVal(summary), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.finalize: %w", err)
	}
	return nil
}

// Delete removes a run; children cascade. Deleting a running run is a conflict.
func (r *EvalRunRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.Delete")
	defer span.End()
	var status domain.RunStatus
	err := r.Pool.QueryRow(ctx, `SELECT status FROM eval_runs WHERE id=$1`, id).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("op=run.delete: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=run.delete: %w", err)
	}
	if status == domain.RunRunning {
		return fmt.Errorf("op=run.delete: %w: run is running", domain.ErrConflict)
	}
	if _, err := r.Pool.Exec(ctx, `DELETE FROM eval_runs WHERE id=$1 AND status <> 'running'`, id); err != nil {
		return fmt.Errorf("op=run.delete: %w", err)
	}
	return nil
}

// DeleteAll removes non-running runs under the filter and reports the count.
func (r *EvalRunRepo) DeleteAll(ctx domain.Context, f domain.RunFilter) (int64, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.DeleteAll")
	defer span.End()
	where, args := runFilterClause(f)
	if where == "" {
		where = " WHERE status <> 'running'"
	} else {
		where += " AND status <> 'running'"
	}
	tag, err := r.Pool.Exec(ctx, `DELETE FROM eval_runs`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("op=run.delete_all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CancelRunningByJobID moves any running run owned by the job to cancelled.
// Applied on every cancel call so a re-cancel still cascades.
func (r *EvalRunRepo) CancelRunningByJobID(ctx domain.Context, jobID string) error {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.CancelRunningByJobID")
	defer span.End()
	q := `UPDATE eval_runs SET status='cancelled', completed_at=$2,
		duration_ms=(EXTRACT(EPOCH FROM ($2::timestamptz - COALESCE(started_at, created_at))) * 1000)::bigint
		WHERE job_id=$1 AND status IN ('pending','running')`
	_, err := r.Pool.Exec(ctx, q, jobID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=run.cancel_by_job: %w", err)
	}
	return nil
}

// StatsSummary aggregates run counts and verdict distributions.
func (r *EvalRunRepo) StatsSummary(ctx domain.Context, appID string) (map[string]any, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.StatsSummary")
	defer span.End()
	byStatus := map[string]int64{}
	byType := map[string]int64{}
	q := `SELECT status, eval_type, COUNT(*) FROM eval_runs`
	args := []any{}
	if appID != "" {
		q += ` WHERE app_id=$1`
		args = append(args, appID)
	}
	q += ` GROUP BY status, eval_type`
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=run.stats: %w", err)
	}
	defer rows.Close()
	var total int64
	for rows.Next() {
		var status, evalType string
		var n int64
		if err := rows.Scan(&status, &evalType, &n); err != nil {
			return nil, fmt.Errorf("op=run.stats: %w", err)
		}
		byStatus[status] += n
		byType[evalType] += n
		total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=run.stats: %w", err)
	}

	verdicts := map[string]int64{}
	vq := `SELECT verdict, COUNT(*) FROM adversarial_evaluations GROUP BY verdict`
	vrows, err := r.Pool.Query(ctx, vq)
	if err != nil {
		return nil, fmt.Errorf("op=run.stats: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v string
		var n int64
		if err := vrows.Scan(&v, &n); err != nil {
			return nil, fmt.Errorf("op=run.stats: %w", err)
		}
		verdicts[v] = n
	}
	return map[string]any{
		"totalRuns":           total,
		"byStatus":            byStatus,
		"byEvalType":          byType,
		"adversarialVerdicts": verdicts,
	}, vrows.Err()
}

// Trends returns per-day run and verdict counts for the trailing window.
func (r *EvalRunRepo) Trends(ctx domain.Context, appID string, days int) ([]map[string]any, error) {
	tracer := otel.Tracer("repo.runs")
	ctx, span := tracer.Start(ctx, "runs.Trends")
	defer span.End()
	if days < 1 {
		days = 1
	}
	if days > 365 {
		days = 365
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	q := `SELECT date_trunc('day', r.created_at) AS day, r.status, COUNT(*)
		FROM eval_runs r WHERE r.created_at >= $1`
	args := []any{since}
	if appID != "" {
		q += ` AND r.app_id=$2`
		args = append(args, appID)
	}
	q += ` GROUP BY day, r.status ORDER BY day ASC`
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=run.trends: %w", err)
	}
	defer rows.Close()
	byDay := map[string]map[string]any{}
	var order []string
	for rows.Next() {
		var day time.Time
		var status string
		var n int64
		if err := rows.Scan(&day, &status, &n); err != nil {
			return nil, fmt.Errorf("op=run.trends: %w", err)
		}
		key := day.Format("2006-01-02")
		entry, ok := byDay[key]
		if !ok {
			entry = map[string]any{"date": key, "counts": map[string]int64{}}
			byDay[key] = entry
			order = append(order, key)
		}
		entry["counts"].(map[string]int64)[status] = n
	}
	out := make([]map[string]any, 0, len(order))
	for _, k := range order {
		out = append(out, byDay[k])
	}
	return out, rows.Err()
}
