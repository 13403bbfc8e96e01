package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements is the embedded DDL applied at startup. Statements are
// idempotent so restarts are safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		params JSONB,
		progress JSONB,
		result JSONB,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at)`,

	`CREATE TABLE IF NOT EXISTS eval_runs (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		eval_type TEXT NOT NULL,
		listing_id TEXT,
		session_id TEXT,
		evaluator_id TEXT,
		job_id TEXT,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		duration_ms BIGINT,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		config JSONB,
		result JSONB,
		summary JSONB,
		batch_metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_eval_runs_listing ON eval_runs (listing_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_eval_runs_session ON eval_runs (session_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_eval_runs_app_type ON eval_runs (app_id, eval_type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_eval_runs_evaluator ON eval_runs (evaluator_id)`,

	`CREATE TABLE IF NOT EXISTS thread_evaluations (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES eval_runs(id) ON DELETE CASCADE,
		thread_id TEXT NOT NULL,
		data_file_hash TEXT NOT NULL DEFAULT '',
		intent_accuracy DOUBLE PRECISION,
		worst_correctness TEXT NOT NULL DEFAULT '',
		efficiency_verdict TEXT NOT NULL DEFAULT '',
		success_status TEXT NOT NULL DEFAULT '',
		result JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_thread_evals_run ON thread_evaluations (run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_thread_evals_thread ON thread_evaluations (thread_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS adversarial_evaluations (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES eval_runs(id) ON DELETE CASCADE,
		category TEXT NOT NULL,
		difficulty TEXT NOT NULL,
		verdict TEXT NOT NULL,
		goal_achieved BOOLEAN NOT NULL DEFAULT FALSE,
		total_turns INTEGER NOT NULL DEFAULT 0,
		result JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_adversarial_evals_run ON adversarial_evaluations (run_id)`,

	`CREATE TABLE IF NOT EXISTS api_logs (
		id TEXT PRIMARY KEY,
		run_id TEXT REFERENCES eval_runs(id) ON DELETE CASCADE,
		thread_id TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		system_prompt TEXT,
		response TEXT,
		error TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		tokens_in INTEGER,
		tokens_out INTEGER,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_logs_run ON api_logs (run_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT 'upload',
		audio_file TEXT,
		audio_mime TEXT NOT NULL DEFAULT '',
		transcript JSONB,
		api_response JSONB,
		ai_eval JSONB,
		evaluator_runs JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		evaluator_runs JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL,
		mime TEXT NOT NULL DEFAULT '',
		size BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS prompts (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		prompt_type TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (app_id, prompt_type, version, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS schemas (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		schema_type TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		content JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (app_id, schema_type, version, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS evaluators (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		fields JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (app_id, name, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		source_type TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL DEFAULT '',
		scores JSONB,
		ts TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_entity ON history (entity_type, entity_id, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_history_source ON history (source_type, source_id, ts)`,

	`CREATE TABLE IF NOT EXISTS settings (
		app_id TEXT NOT NULL DEFAULT '',
		key TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		value JSONB,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (app_id, key, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		app_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (app_id, name, user_id)
	)`,
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=schema.migrate stmt=%d: %w", i, err)
		}
	}
	return nil
}
