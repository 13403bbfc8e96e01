package postgres

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// ApiLogRepo persists LLM call audit records. Rows are append-only; deletion
// is explicit and bulk-scoped.
type ApiLogRepo struct{ Pool PgxPool }

// NewApiLogRepo constructs an ApiLogRepo with the given pool.
func NewApiLogRepo(p PgxPool) *ApiLogRepo { return &ApiLogRepo{Pool: p} }

// truncate cuts at a rune boundary; slicing a multi-byte rune would make
// the string invalid UTF-8 and Postgres rejects such text values.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func truncatePtr(s *string, max int) *string {
	if s == nil {
		return nil
	}
	t := truncate(*s, max)
	return &t
}

// Create inserts one audit row, applying the prompt/response truncation limits.
func (r *ApiLogRepo) Create(ctx domain.Context, l domain.ApiLog) (string, error) {
	tracer := otel.Tracer("repo.api_logs")
	ctx, span := tracer.Start(ctx, "api_logs.Create")
	defer span.End()
	id := l.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO api_logs (id, run_id, thread_id, provider, model, method, prompt,
		system_prompt, response, error, duration_ms, tokens_in, tokens_out, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := r.Pool.Exec(ctx, q, id, l.RunID, l.ThreadID, l.Provider, l.Model, l.Method,
		truncate(l.Prompt, domain.ApiLogPromptMax),
		truncatePtr(l.SystemPrompt, domain.ApiLogSystemPromptMax),
		truncatePtr(l.Response, domain.ApiLogResponseMax),
		l.Error, l.DurationMS, l.TokensIn, l.TokensOut, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=api_log.create: %w", err)
	}
	return id, nil
}

func apiLogFilterClause(f domain.ApiLogFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.RunID != "" {
		add("run_id=$%d", f.RunID)
	}
	if f.ThreadID != "" {
		add("thread_id=$%d", f.ThreadID)
	}
	if f.Provider != "" {
		add("provider=$%d", f.Provider)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns audit rows in call order (created_at ascending) under the filter.
func (r *ApiLogRepo) List(ctx domain.Context, f domain.ApiLogFilter) ([]domain.ApiLog, error) {
	tracer := otel.Tracer("repo.api_logs")
	ctx, span := tracer.Start(ctx, "api_logs.List")
	defer span.End()
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	where, args := apiLogFilterClause(f)
	q := `SELECT id, run_id, thread_id, provider, model, method, prompt, system_prompt,
		response, error, duration_ms, tokens_in, tokens_out, created_at FROM api_logs` + where +
		fmt.Sprintf(` ORDER BY created_at ASC LIMIT %d OFFSET %d`, limit, offset)
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=api_log.list: %w", err)
	}
	defer rows.Close()
	var out []domain.ApiLog
	for rows.Next() {
		var l domain.ApiLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.ThreadID, &l.Provider, &l.Model, &l.Method,
			&l.Prompt, &l.SystemPrompt, &l.Response, &l.Error, &l.DurationMS,
			&l.TokensIn, &l.TokensOut, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=api_log.list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Delete removes audit rows under the filter and reports the count.
func (r *ApiLogRepo) Delete(ctx domain.Context, f domain.ApiLogFilter) (int64, error) {
	tracer := otel.Tracer("repo.api_logs")
	ctx, span := tracer.Start(ctx, "api_logs.Delete")
	defer span.End()
	where, args := apiLogFilterClause(f)
	tag, err := r.Pool.Exec(ctx, `DELETE FROM api_logs`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("op=api_log.delete: %w", err)
	}
	return tag.RowsAffected(), nil
}
