package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// ListingRepo loads and updates voice-rx listings.
type ListingRepo struct{ Pool PgxPool }

// NewListingRepo constructs a ListingRepo with the given pool.
func NewListingRepo(p PgxPool) *ListingRepo { return &ListingRepo{Pool: p} }

// Get loads a listing by id.
func (r *ListingRepo) Get(ctx domain.Context, id string) (domain.Listing, error) {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.Get")
	defer span.End()
	q := `SELECT id, app_id, user_id, name, source_type, audio_file, COALESCE(audio_mime,''),
		transcript, api_response, ai_eval, evaluator_runs, created_at, updated_at
		FROM listings WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var l domain.Listing
	var transcript, apiResp, aiEval, evalRuns []byte
	if err := row.Scan(&l.ID, &l.AppID, &l.UserID, &l.Name, &l.SourceType, &l.AudioFile, &l.AudioMIME,
		&transcript, &apiResp, &aiEval, &evalRuns, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Listing{}, fmt.Errorf("op=listing.get: %w", domain.ErrNotFound)
		}
		return domain.Listing{}, fmt.Errorf("op=listing.get: %w", err)
	}
	l.Transcript = scanJSONMap(transcript)
	l.APIResponse = scanJSONMap(apiResp)
	l.AIEval = scanJSONMap(aiEval)
	l.EvaluatorRuns = scanJSONSlice(evalRuns)
	return l, nil
}

// SetTranscript replaces the listing's transcript snapshot.
func (r *ListingRepo) SetTranscript(ctx domain.Context, id string, transcript map[string]any) error {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.SetTranscript")
	defer span.End()
	q := `UPDATE listings SET transcript=$2, updated_at=now() WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, jsonVal(transcript)); err != nil {
		return fmt.Errorf("op=listing.set_transcript: %w", err)
	}
	return nil
}

// SetAIEval replaces the listing's ai_eval snapshot.
func (r *ListingRepo) SetAIEval(ctx domain.Context, id string, aiEval map[string]any) error {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.SetAIEval")
	defer span.End()
	q := `UPDATE listings SET ai_eval=$2, updated_at=now() WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, jsonVal(aiEval)); err != nil {
		return fmt.Errorf("op=listing.set_ai_eval: %w", err)
	}
	return nil
}

// AppendEvaluatorRun appends one custom-evaluator outcome to the listing's
// ordered run history.
func (r *ListingRepo) AppendEvaluatorRun(ctx domain.Context, id string, run map[string]any) error {
	tracer := otel.Tracer("repo.listings")
	ctx, span := tracer.Start(ctx, "listings.AppendEvaluatorRun")
	defer span.End()
	q := `UPDATE listings SET evaluator_runs = COALESCE(evaluator_runs, '[]'::jsonb) || $2::jsonb,
		updated_at=now() WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, jsonValAny([]map[string]any{run})); err != nil {
		return fmt.Errorf("op=listing.append_run: %w", err)
	}
	return nil
}

// SessionRepo loads chat sessions and their message sequences.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

// Get loads a chat session by id.
func (r *SessionRepo) Get(ctx domain.Context, id string) (domain.ChatSession, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Get")
	defer span.End()
	q := `SELECT id, app_id, user_id, name, metadata, evaluator_runs, created_at FROM chat_sessions WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var s domain.ChatSession
	var metadata, evalRuns []byte
	if err := row.Scan(&s.ID, &s.AppID, &s.UserID, &s.Name, &metadata, &evalRuns, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.ChatSession{}, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
		}
		return domain.ChatSession{}, fmt.Errorf("op=session.get: %w", err)
	}
	s.Metadata = scanJSONMap(metadata)
	s.EvaluatorRuns = scanJSONSlice(evalRuns)
	return s, nil
}

// Messages returns the session's messages in chronological order.
func (r *SessionRepo) Messages(ctx domain.Context, sessionID string) ([]domain.SessionMessage, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.Messages")
	defer span.End()
	q := `SELECT id, session_id, role, content, created_at FROM chat_messages
		WHERE session_id=$1 ORDER BY created_at ASC`
	rows, err := r.Pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("op=session.messages: %w", err)
	}
	defer rows.Close()
	var out []domain.SessionMessage
	for rows.Next() {
		var m domain.SessionMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=session.messages: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendEvaluatorRun appends one custom-evaluator outcome to the session's
// ordered run history.
func (r *SessionRepo) AppendEvaluatorRun(ctx domain.Context, id string, run map[string]any) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.AppendEvaluatorRun")
	defer span.End()
	q := `UPDATE chat_sessions SET evaluator_runs = COALESCE(evaluator_runs, '[]'::jsonb) || $2::jsonb
		WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, jsonValAny([]map[string]any{run})); err != nil {
		return fmt.Errorf("op=session.append_run: %w", err)
	}
	return nil
}
