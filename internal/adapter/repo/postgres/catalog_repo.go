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

// PromptRepo persists versioned prompt templates.
type PromptRepo struct{ Pool PgxPool }

// NewPromptRepo constructs a PromptRepo with the given pool.
func NewPromptRepo(p PgxPool) *PromptRepo { return &PromptRepo{Pool: p} }

// GetByType loads the newest version of a prompt type.
func (r *PromptRepo) GetByType(ctx domain.Context, appID, promptType, userID string) (domain.Prompt, error) {
	tracer := otel.Tracer("repo.prompts")
	ctx, span := tracer.Start(ctx, "prompts.GetByType")
	defer span.End()
	q := `SELECT id, app_id, prompt_type, version, user_id, name, content, created_at, updated_at
		FROM prompts WHERE app_id=$1 AND prompt_type=$2 AND user_id=$3
		ORDER BY version DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, appID, promptType, userID)
	var p domain.Prompt
	if err := row.Scan(&p.ID, &p.AppID, &p.PromptType, &p.Version, &p.UserID, &p.Name, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Prompt{}, fmt.Errorf("op=prompt.get: %w", domain.ErrNotFound)
		}
		return domain.Prompt{}, fmt.Errorf("op=prompt.get: %w", err)
	}
	return p, nil
}

// Upsert inserts the prompt or updates it when the stored content differs.
// Reports whether a write happened, so seeding stays idempotent.
func (r *PromptRepo) Upsert(ctx domain.Context, p domain.Prompt) (bool, error) {
	tracer := otel.Tracer("repo.prompts")
	ctx, span := tracer.Start(ctx, "prompts.Upsert")
	defer span.End()
	existing, err := r.GetByType(ctx, p.AppID, p.PromptType, p.UserID)
	if err == nil {
		if existing.Content == p.Content && existing.Name == p.Name {
			return false, nil
		}
		q := `UPDATE prompts SET name=$2, content=$3, updated_at=$4 WHERE id=$1`
		if _, err := r.Pool.Exec(ctx, q, existing.ID, p.Name, p.Content, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("op=prompt.upsert: %w", err)
		}
		return true, nil
	}
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	version := p.Version
	if version == 0 {
		version = 1
	}
	now := time.Now().UTC()
	q := `INSERT INTO prompts (id, app_id, prompt_type, version, user_id, name, content, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := r.Pool.Exec(ctx, q, id, p.AppID, p.PromptType, version, p.UserID, p.Name, p.Content, now, now); err != nil {
		return false, fmt.Errorf("op=prompt.upsert: %w", err)
	}
	return true, nil
}

// SchemaRepo persists versioned JSON schema documents.
type SchemaRepo struct{ Pool PgxPool }

// NewSchemaRepo constructs a SchemaRepo with the given pool.
func NewSchemaRepo(p PgxPool) *SchemaRepo { return &SchemaRepo{Pool: p} }

// GetByType loads the newest version of a schema type.
func (r *SchemaRepo) GetByType(ctx domain.Context, appID, schemaType, userID string) (domain.SchemaDef, error) {
	tracer := otel.Tracer("repo.schemas")
	ctx, span := tracer.Start(ctx, "schemas.GetByType")
	defer span.End()
	q := `SELECT id, app_id, schema_type, version, user_id, name, content, created_at, updated_at
		FROM schemas WHERE app_id=$1 AND schema_type=$2 AND user_id=$3
		ORDER BY version DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, appID, schemaType, userID)
	var s domain.SchemaDef
	var content []byte
	if err := row.Scan(&s.ID, &s.AppID, &s.SchemaType, &s.Version, &s.UserID, &s.Name, &content, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.SchemaDef{}, fmt.Errorf("op=schema.get: %w", domain.ErrNotFound)
		}
		return domain.SchemaDef{}, fmt.Errorf("op=schema.get: %w", err)
	}
	s.Content = scanJSONMap(content)
	return s, nil
}

// Upsert inserts the schema or updates it when the stored content differs.
func (r *SchemaRepo) Upsert(ctx domain.Context, s domain.SchemaDef) (bool, error) {
	tracer := otel.Tracer("repo.schemas")
	ctx, span := tracer.Start(ctx, "schemas.Upsert")
	defer span.End()
	existing, err := r.GetByType(ctx, s.AppID, s.SchemaType, s.UserID)
	if err == nil {
		a, _ := json.Marshal(existing.Content)
		b, _ := json.Marshal(s.Content)
		if string(a) == string(b) && existing.Name == s.Name {
			return false, nil
		}
		q := `UPDATE schemas SET name=$2, content=$3, updated_at=$4 WHERE id=$1`
		if _, err := r.Pool.Exec(ctx, q, existing.ID, s.Name, jsonVal(s.Content), time.Now().UTC()); err != nil {
			return false, fmt.Errorf("op=schema.upsert: %w", err)
		}
		return true, nil
	}
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	version := s.Version
	if version == 0 {
		version = 1
	}
	now := time.Now().UTC()
	q := `INSERT INTO schemas (id, app_id, schema_type, version, user_id, name, content, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err := r.Pool.Exec(ctx, q, id, s.AppID, s.SchemaType, version, s.UserID, s.Name, jsonVal(s.Content), now, now); err != nil {
		return false, fmt.Errorf("op=schema.upsert: %w", err)
	}
	return true, nil
}

// EvaluatorRepo persists user-defined evaluators.
type EvaluatorRepo struct{ Pool PgxPool }

// NewEvaluatorRepo constructs an EvaluatorRepo with the given pool.
func NewEvaluatorRepo(p PgxPool) *EvaluatorRepo { return &EvaluatorRepo{Pool: p} }

const evaluatorColumns = `id, app_id, user_id, name, COALESCE(description,''), COALESCE(prompt,''),
	COALESCE(model,''), fields, created_at, updated_at`

func scanEvaluator(row pgx.Row) (domain.Evaluator, error) {
	var e domain.Evaluator
	var fields []byte
	if err := row.Scan(&e.ID, &e.AppID, &e.UserID, &e.Name, &e.Description, &e.Prompt, &e.Model,
		&fields, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return domain.Evaluator{}, err
	}
	if len(fields) > 0 {
		_ = json.Unmarshal(fields, &e.Fields)
	}
	return e, nil
}

// Get loads an evaluator by id.
func (r *EvaluatorRepo) Get(ctx domain.Context, id string) (domain.Evaluator, error) {
	tracer := otel.Tracer("repo.evaluators")
	ctx, span := tracer.Start(ctx, "evaluators.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+evaluatorColumns+` FROM evaluators WHERE id=$1`, id)
	e, err := scanEvaluator(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Evaluator{}, fmt.Errorf("op=evaluator.get: %w", domain.ErrNotFound)
		}
		return domain.Evaluator{}, fmt.Errorf("op=evaluator.get: %w", err)
	}
	return e, nil
}

// List returns an app's evaluators in name order.
func (r *EvaluatorRepo) List(ctx domain.Context, appID string) ([]domain.Evaluator, error) {
	tracer := otel.Tracer("repo.evaluators")
	ctx, span := tracer.Start(ctx, "evaluators.List")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+evaluatorColumns+` FROM evaluators WHERE app_id=$1 ORDER BY name ASC`, appID)
	if err != nil {
		return nil, fmt.Errorf("op=evaluator.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Evaluator
	for rows.Next() {
		e, err := scanEvaluator(rows)
		if err != nil {
			return nil, fmt.Errorf("op=evaluator.list: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExistingIDs filters ids down to those present, preserving input order.
func (r *EvaluatorRepo) ExistingIDs(ctx domain.Context, ids []string) ([]string, error) {
	tracer := otel.Tracer("repo.evaluators")
	ctx, span := tracer.Start(ctx, "evaluators.ExistingIDs")
	defer span.End()
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.Pool.Query(ctx, `SELECT id FROM evaluators WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("op=evaluator.existing: %w", err)
	}
	defer rows.Close()
	present := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=evaluator.existing: %w", err)
		}
		present[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=evaluator.existing: %w", err)
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if present[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// Upsert inserts or updates by (app_id, name, user_id); reports whether a
// write happened.
func (r *EvaluatorRepo) Upsert(ctx domain.Context, e domain.Evaluator) (bool, error) {
	tracer := otel.Tracer("repo.evaluators")
	ctx, span := tracer.Start(ctx, "evaluators.Upsert")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+evaluatorColumns+` FROM evaluators WHERE app_id=$1 AND name=$2 AND user_id=$3`, e.AppID, e.Name, e.UserID)
	existing, err := scanEvaluator(row)
	if err == nil {
		a, _ := json.Marshal(existing.Fields)
		b, _ := json.Marshal(e.Fields)
		if existing.Prompt == e.Prompt && existing.Model == e.Model &&
			existing.Description == e.Description && string(a) == string(b) {
			return false, nil
		}
		q := `UPDATE evaluators SET description=$2, prompt=$3, model=$4, fields=$5, updated_at=$6 WHERE id=$1`
		if _, err := r.Pool.Exec(ctx, q, existing.ID, e.Description, e.Prompt, e.Model, jsonValAny(e.Fields), time.Now().UTC()); err != nil {
			return false, fmt.Errorf("op=evaluator.upsert: %w", err)
		}
		return true, nil
	}
	if err != pgx.ErrNoRows {
		return false, fmt.Errorf("op=evaluator.upsert: %w", err)
	}
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO evaluators (id, app_id, user_id, name, description, prompt, model, fields, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if _, err := r.Pool.Exec(ctx, q, id, e.AppID, e.UserID, e.Name, e.Description, e.Prompt, e.Model, jsonValAny(e.Fields), now, now); err != nil {
		return false, fmt.Errorf("op=evaluator.upsert: %w", err)
	}
	return true, nil
}

// HistoryRepo persists evaluation history entries.
type HistoryRepo struct{ Pool PgxPool }

// NewHistoryRepo constructs a HistoryRepo with the given pool.
func NewHistoryRepo(p PgxPool) *HistoryRepo { return &HistoryRepo{Pool: p} }

// Create inserts one history entry and returns its id.
func (r *HistoryRepo) Create(ctx domain.Context, h domain.HistoryEntry) (string, error) {
	tracer := otel.Tracer("repo.history")
	ctx, span := tracer.Start(ctx, "history.Create")
	defer span.End()
	id := h.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := h.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	q := `INSERT INTO history (id, entity_type, entity_id, source_type, source_id, event_type, scores, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, h.EntityType, h.EntityID, h.SourceType, h.SourceID, h.EventType, jsonVal(h.Scores), ts); err != nil {
		return "", fmt.Errorf("op=history.create: %w", err)
	}
	return id, nil
}

// ListByEntity returns an entity's history entries newest first.
func (r *HistoryRepo) ListByEntity(ctx domain.Context, entityType, entityID string, limit int) ([]domain.HistoryEntry, error) {
	tracer := otel.Tracer("repo.history")
	ctx, span := tracer.Start(ctx, "history.ListByEntity")
	defer span.End()
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, entity_type, entity_id, source_type, source_id, event_type, scores, ts
		FROM history WHERE entity_type=$1 AND entity_id=$2 ORDER BY ts DESC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=history.list: %w", err)
	}
	defer rows.Close()
	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var scores []byte
		if err := rows.Scan(&h.ID, &h.EntityType, &h.EntityID, &h.SourceType, &h.SourceID, &h.EventType, &scores, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("op=history.list: %w", err)
		}
		h.Scores = scanJSONMap(scores)
		out = append(out, h)
	}
	return out, rows.Err()
}

// FileRepo persists file metadata; bytes live in the blob store.
type FileRepo struct{ Pool PgxPool }

// NewFileRepo constructs a FileRepo with the given pool.
func NewFileRepo(p PgxPool) *FileRepo { return &FileRepo{Pool: p} }

// Create inserts one file record and returns its id.
func (r *FileRepo) Create(ctx domain.Context, f domain.FileRef) (string, error) {
	tracer := otel.Tracer("repo.files")
	ctx, span := tracer.Start(ctx, "files.Create")
	defer span.End()
	id := f.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO files (id, app_id, user_id, name, path, mime, size, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, f.AppID, f.UserID, f.Name, f.Path, f.MIME, f.Size, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("op=file.create: %w", err)
	}
	return id, nil
}

// Get loads a file record by id.
func (r *FileRepo) Get(ctx domain.Context, id string) (domain.FileRef, error) {
	tracer := otel.Tracer("repo.files")
	ctx, span := tracer.Start(ctx, "files.Get")
	defer span.End()
	q := `SELECT id, app_id, user_id, name, path, mime, size, created_at FROM files WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var f domain.FileRef
	if err := row.Scan(&f.ID, &f.AppID, &f.UserID, &f.Name, &f.Path, &f.MIME, &f.Size, &f.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.FileRef{}, fmt.Errorf("op=file.get: %w", domain.ErrNotFound)
		}
		return domain.FileRef{}, fmt.Errorf("op=file.get: %w", err)
	}
	return f, nil
}
