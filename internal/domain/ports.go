package domain

// Repositories (ports)

// RunFilter narrows eval-run queries. Empty fields are ignored.
type RunFilter struct {
	AppID       string
	EvalType    EvalType
	ListingID   string
	SessionID   string
	EvaluatorID string
	JobID       string
	Status      RunStatus
	Limit       int
	Offset      int
}

// ApiLogFilter narrows api-log queries and bulk deletes.
type ApiLogFilter struct {
	RunID    string
	ThreadID string
	Provider string
	Limit    int
	Offset   int
}

type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	Get(ctx Context, id string) (Job, error)
	List(ctx Context, status string, limit, offset int) ([]Job, error)
	// ClaimNextQueued transactionally moves the oldest queued job to running
	// and returns it. ErrNotFound when the queue is empty.
	ClaimNextQueued(ctx Context) (Job, error)
	MarkCompleted(ctx Context, id string, result map[string]any) error
	MarkFailed(ctx Context, id, errMsg string) error
	MarkCancelled(ctx Context, id string) error
	UpdateProgress(ctx Context, id string, p Progress) error
	Status(ctx Context, id string) (JobStatus, error)
	FailStuckRunning(ctx Context, olderThanSeconds int) (int64, error)
}

type EvalRunRepository interface {
	Create(ctx Context, r EvalRun) (string, error)
	Get(ctx Context, id string) (EvalRun, error)
	List(ctx Context, f RunFilter) ([]EvalRun, error)
	MarkRunning(ctx Context, id string) error
	// Finalize writes the terminal status together with result/summary,
	// completed_at and duration_ms.
	Finalize(ctx Context, id string, status RunStatus, errMsg string, result, summary map[string]any) error
	// Delete removes a run and its cascaded children; ErrConflict while running.
	Delete(ctx Context, id string) error
	DeleteAll(ctx Context, f RunFilter) (int64, error)
	// CancelRunningByJobID moves any running run owned by the job to cancelled.
	CancelRunningByJobID(ctx Context, jobID string) error
	StatsSummary(ctx Context, appID string) (map[string]any, error)
	Trends(ctx Context, appID string, days int) ([]map[string]any, error)
}

type ThreadEvalRepository interface {
	Create(ctx Context, te ThreadEvaluation) (string, error)
	ListByRun(ctx Context, runID string) ([]ThreadEvaluation, error)
	ThreadHistory(ctx Context, threadID string) ([]ThreadEvaluation, error)
}

type AdversarialEvalRepository interface {
	Create(ctx Context, ae AdversarialEvaluation) (string, error)
	ListByRun(ctx Context, runID string) ([]AdversarialEvaluation, error)
}

type ApiLogRepository interface {
	Create(ctx Context, l ApiLog) (string, error)
	List(ctx Context, f ApiLogFilter) ([]ApiLog, error)
	Delete(ctx Context, f ApiLogFilter) (int64, error)
}

type SettingsRepository interface {
	Get(ctx Context, appID, key, userID string) (Setting, error)
	Upsert(ctx Context, s Setting) error
	Delete(ctx Context, appID, key, userID string) error
}

type ListingRepository interface {
	Get(ctx Context, id string) (Listing, error)
	SetTranscript(ctx Context, id string, transcript map[string]any) error
	SetAIEval(ctx Context, id string, aiEval map[string]any) error
	AppendEvaluatorRun(ctx Context, id string, run map[string]any) error
}

type SessionRepository interface {
	Get(ctx Context, id string) (ChatSession, error)
	Messages(ctx Context, sessionID string) ([]SessionMessage, error)
	AppendEvaluatorRun(ctx Context, id string, run map[string]any) error
}

type EvaluatorRepository interface {
	Get(ctx Context, id string) (Evaluator, error)
	List(ctx Context, appID string) ([]Evaluator, error)
	// ExistingIDs filters ids down to those present, preserving input order.
	ExistingIDs(ctx Context, ids []string) ([]string, error)
	// Upsert inserts or updates by (app_id, name, user_id); reports whether a
	// write happened, so seeding stays idempotent.
	Upsert(ctx Context, e Evaluator) (bool, error)
}

type PromptRepository interface {
	GetByType(ctx Context, appID, promptType, userID string) (Prompt, error)
	Upsert(ctx Context, p Prompt) (bool, error)
}

type SchemaRepository interface {
	GetByType(ctx Context, appID, schemaType, userID string) (SchemaDef, error)
	Upsert(ctx Context, s SchemaDef) (bool, error)
}

type HistoryRepository interface {
	Create(ctx Context, h HistoryEntry) (string, error)
	ListByEntity(ctx Context, entityType, entityID string, limit int) ([]HistoryEntry, error)
}

type FileRepository interface {
	Create(ctx Context, f FileRef) (string, error)
	Get(ctx Context, id string) (FileRef, error)
}

// BlobStore stores bytes by opaque path (local disk or Azure Blob).
type BlobStore interface {
	Save(ctx Context, path string, data []byte) error
	Read(ctx Context, path string) ([]byte, error)
	Delete(ctx Context, path string) error
}

// GenerateOpts carries per-call provider hints.
type GenerateOpts struct {
	SystemPrompt  string
	ThinkingLevel string
}

// LLMClient is the provider port. GenerateJSON and GenerateWithAudio return
// the parsed object; providers run the JSON extraction/repair pipeline before
// failing a malformed response.
type LLMClient interface {
	Provider() string
	Model() string
	Generate(ctx Context, prompt string, opts GenerateOpts) (string, error)
	GenerateJSON(ctx Context, prompt string, schema map[string]any, opts GenerateOpts) (map[string]any, error)
	GenerateWithAudio(ctx Context, prompt string, audio []byte, mimeType string, schema map[string]any, opts GenerateOpts) (map[string]any, error)
}

// ChatAPI posts one turn to the external chat service and returns the decoded
// stream frames in arrival order.
type ChatAPI interface {
	Send(ctx Context, p KairaPayload) ([]KairaChunk, error)
}

// CancelProbe lets long-running handlers observe cooperative cancellation.
type CancelProbe interface {
	IsCancelled(ctx Context, jobID string) bool
}
