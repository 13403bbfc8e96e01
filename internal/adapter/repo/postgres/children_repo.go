package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// ThreadEvalRepo persists per-thread results of batch runs.
type ThreadEvalRepo struct{ Pool PgxPool }

// NewThreadEvalRepo constructs a ThreadEvalRepo with the given pool.
func NewThreadEvalRepo(p PgxPool) *ThreadEvalRepo { return &ThreadEvalRepo{Pool: p} }

const threadEvalColumns = `id, run_id, thread_id, COALESCE(data_file_hash,''), intent_accuracy,
	COALESCE(worst_correctness,''), COALESCE(efficiency_verdict,''), COALESCE(success_status,''), result, created_at`

func scanThreadEval(row pgx.Row) (domain.ThreadEvaluation, error) {
	var te domain.ThreadEvaluation
	var result []byte
	if err := row.Scan(&te.ID, &te.RunID, &te.ThreadID, &te.DataFileHash, &te.IntentAccuracy,
		&te.WorstCorrectness, &te.EfficiencyVerdict, &te.SuccessStatus, &result, &te.CreatedAt); err != nil {
		return domain.ThreadEvaluation{}, err
	}
	te.Result = scanJSONMap(result)
	return te, nil
}

// Create inserts a thread evaluation and returns its id.
func (r *ThreadEvalRepo) Create(ctx domain.Context, te domain.ThreadEvaluation) (string, error) {
	tracer := otel.Tracer("repo.thread_evals")
	ctx, span := tracer.Start(ctx, "thread_evals.Create")
	defer span.End()
	id := te.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO thread_evaluations (id, run_id, thread_id, data_file_hash, intent_accuracy,
		worst_correctness, efficiency_verdict, success_status, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, id, te.RunID, te.ThreadID, te.DataFileHash, te.IntentAccuracy,
		te.WorstCorrectness, te.EfficiencyVerdict, te.SuccessStatus, jsonVal(te.Result), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=thread_eval.create: %w", err)
	}
	return id, nil
}

// ListByRun returns the thread evaluations of a run in insertion order.
func (r *ThreadEvalRepo) ListByRun(ctx domain.Context, runID string) ([]domain.ThreadEvaluation, error) {
	tracer := otel.Tracer("repo.thread_evals")
	ctx, span := tracer.Start(ctx, "thread_evals.ListByRun")
	defer span.End()
	q := `SELECT ` + threadEvalColumns + ` FROM thread_evaluations WHERE run_id=$1 ORDER BY created_at ASC`
	rows, err := r.Pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("op=thread_eval.list: %w", err)
	}
	defer rows.Close()
	var out []domain.ThreadEvaluation
	for rows.Next() {
		te, err := scanThreadEval(rows)
		if err != nil {
			return nil, fmt.Errorf("op=thread_eval.list: %w", err)
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

// ThreadHistory returns every evaluation of a thread across runs, newest first.
func (r *ThreadEvalRepo) ThreadHistory(ctx domain.Context, threadID string) ([]domain.ThreadEvaluation, error) {
	tracer := otel.Tracer("repo.thread_evals")
	ctx, span := tracer.Start(ctx, "thread_evals.ThreadHistory")
	defer span.End()
	q := `SELECT ` + threadEvalColumns + ` FROM thread_evaluations WHERE thread_id=$1 ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, threadID)
	if err != nil {
		return nil, fmt.Errorf("op=thread_eval.history: %w", err)
	}
	defer rows.Close()
	var out []domain.ThreadEvaluation
	for rows.Next() {
		te, err := scanThreadEval(rows)
		if err != nil {
			return nil, fmt.Errorf("op=thread_eval.history: %w", err)
		}
		out = append(out, te)
	}
	return out, rows.Err()
}

// AdversarialEvalRepo persists per-test-case verdicts of adversarial runs.
type AdversarialEvalRepo struct{ Pool PgxPool }

// NewAdversarialEvalRepo constructs an AdversarialEvalRepo with the given pool.
func NewAdversarialEvalRepo(p PgxPool) *AdversarialEvalRepo { return &AdversarialEvalRepo{Pool: p} }

// Create inserts an adversarial evaluation and returns its id.
func (r *AdversarialEvalRepo) Create(ctx domain.Context, ae domain.AdversarialEvaluation) (string, error) {
	tracer := otel.Tracer("repo.adversarial_evals")
	ctx, span := tracer.Start(ctx, "adversarial_evals.Create")
	defer span.End()
	id := ae.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO adversarial_evaluations (id, run_id, category, difficulty, verdict,
		goal_achieved, total_turns, result, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.Pool.Exec(ctx, q, id, ae.RunID, ae.Category, ae.Difficulty, ae.Verdict,
		ae.GoalAchieved, ae.TotalTurns, jsonVal(ae.Result), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=adversarial_eval.create: %w", err)
	}
	return id, nil
}

// ListByRun returns the adversarial evaluations of a run in insertion order.
func (r *AdversarialEvalRepo) ListByRun(ctx domain.Context, runID string) ([]domain.AdversarialEvaluation, error) {
	tracer := otel.Tracer("repo.adversarial_evals")
	ctx, span := tracer.Start(ctx, "adversarial_evals.ListByRun")
	defer span.End()
	q := `SELECT id, run_id, category, difficulty, verdict, goal_achieved, total_turns, result, created_at
		FROM adversarial_evaluations WHERE run_id=$1 ORDER BY created_at ASC`
	rows, err := r.Pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("op=adversarial_eval.list: %w", err)
	}
	defer rows.Close()
	var out []domain.AdversarialEvaluation
	for rows.Next() {
		var ae domain.AdversarialEvaluation
		var result []byte
		if err := rows.Scan(&ae.ID, &ae.RunID, &ae.Category, &ae.Difficulty, &ae.Verdict,
			&ae.GoalAchieved, &ae.TotalTurns, &result, &ae.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=adversarial_eval.list: %w", err)
		}
		ae.Result = scanJSONMap(result)
		out = append(out, ae)
	}
	return out, rows.Err()
}
