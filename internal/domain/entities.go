// Package domain holds the core entities, enums, ports and error taxonomy
// of the conversational-AI evaluation service.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUpstream        = errors.New("upstream failure")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrInternal        = errors.New("internal error")

	// ErrJobCancelled is the cooperative-cancellation sentinel. Runners translate
	// it into a cancelled terminal state, never into failed.
	ErrJobCancelled = errors.New("job cancelled")
)

// Context is an alias so adapters and usecases share one context type.
type Context = context.Context

// JobStatus enumerates the job state machine:
// queued -> running -> {completed, failed, cancelled} and queued -> cancelled.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobType enumerates the registered worker handlers.
type JobType string

const (
	JobEvaluateBatch       JobType = "evaluate-batch"
	JobEvaluateAdversarial JobType = "evaluate-adversarial"
	JobEvaluateCustom      JobType = "evaluate-custom"
	JobEvaluateCustomBatch JobType = "evaluate-custom-batch"
	JobEvaluateVoiceRx     JobType = "evaluate-voice-rx"
)

// Progress is the per-job progress snapshot. Current is monotonic within a
// single run. The optional ids let the UI deep-link while a job is running.
type Progress struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Message     string `json:"message"`
	RunID       string `json:"runId,omitempty"`
	ListingID   string `json:"listingId,omitempty"`
	EvaluatorID string `json:"evaluatorId,omitempty"`
}

// Job is one unit of background work. Params is opaque to the queue; the
// recognized keys depend on JobType. Params may carry a large csv_content
// value which is stripped from API responses.
type Job struct {
	ID           string
	JobType      JobType
	Status       JobStatus
	Params       map[string]any
	Progress     Progress
	Result       map[string]any
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// EvalType enumerates evaluation-run families.
type EvalType string

const (
	EvalCustom           EvalType = "custom"
	EvalFullEvaluation   EvalType = "full_evaluation"
	EvalHuman            EvalType = "human"
	EvalBatchThread      EvalType = "batch_thread"
	EvalBatchAdversarial EvalType = "batch_adversarial"
)

// MapLegacyCommand maps legacy job-command names onto canonical eval types.
// Unknown commands map to empty (no filter).
func MapLegacyCommand(command string) EvalType {
	switch command {
	case "evaluate-batch":
		return EvalBatchThread
	case "adversarial":
		return EvalBatchAdversarial
	case "evaluate-voice-rx":
		return EvalFullEvaluation
	default:
		return ""
	}
}

// RunStatus enumerates the eval-run state machine.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// EvalRun is one evaluation execution. Invariants: exactly one of ListingID
// or SessionID is set for non-batch runs; EvalCustom implies EvaluatorID;
// children cascade-delete with the run; a running run cannot be deleted.
type EvalRun struct {
	ID            string
	AppID         string
	EvalType      EvalType
	ListingID     *string
	SessionID     *string
	EvaluatorID   *string
	JobID         *string
	Status        RunStatus
	ErrorMessage  string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	DurationMS    *int64
	Provider      string
	Model         string
	Config        map[string]any
	Result        map[string]any
	Summary       map[string]any
	BatchMetadata map[string]any
	CreatedAt     time.Time
}

// Verdict values share one ranked severity scale.
const (
	VerdictNotApplicable = "NOT APPLICABLE"
	VerdictPass          = "PASS"
	VerdictSoftFail      = "SOFT FAIL"
	VerdictHardFail      = "HARD FAIL"
	VerdictCritical      = "CRITICAL"
)

var severityRank = map[string]int{
	VerdictNotApplicable: 0,
	VerdictPass:          1,
	VerdictSoftFail:      2,
	VerdictHardFail:      3,
	VerdictCritical:      4,
}

// SeverityRank returns the ordinal of a correctness verdict; unknown verdicts
// rank below NOT APPLICABLE so they never win a worst-of aggregation.
func SeverityRank(verdict string) int {
	if r, ok := severityRank[verdict]; ok {
		return r
	}
	return -1
}

// WorstVerdict returns the maximum-severity verdict of the list, or
// NOT APPLICABLE when the list is empty.
func WorstVerdict(verdicts []string) string {
	worst := VerdictNotApplicable
	for _, v := range verdicts {
		if SeverityRank(v) > SeverityRank(worst) {
			worst = v
		}
	}
	return worst
}

// Efficiency verdicts for whole-thread judgments.
const (
	EfficiencyEfficient  = "EFFICIENT"
	EfficiencyAcceptable = "ACCEPTABLE"
	EfficiencyFriction   = "FRICTION"
	EfficiencyBroken     = "BROKEN"
)

// Adversarial difficulties.
const (
	DifficultyEasy   = "EASY"
	DifficultyMedium = "MEDIUM"
	DifficultyHard   = "HARD"
)

// ThreadEvaluation is a per-thread child row of a batch run.
type ThreadEvaluation struct {
	ID                string
	RunID             string
	ThreadID          string
	DataFileHash      string
	IntentAccuracy    *float64
	WorstCorrectness  string
	EfficiencyVerdict string
	SuccessStatus     string
	Result            map[string]any
	CreatedAt         time.Time
}

// AdversarialEvaluation is a per-test-case child row of an adversarial run.
type AdversarialEvaluation struct {
	ID           string
	RunID        string
	Category     string
	Difficulty   string
	Verdict      string
	GoalAchieved bool
	TotalTurns   int
	Result       map[string]any
	CreatedAt    time.Time
}

// ApiLog method names.
const (
	MethodGenerate          = "generate"
	MethodGenerateJSON      = "generate_json"
	MethodGenerateWithAudio = "generate_with_audio"
)

// Truncation limits applied before persisting ApiLog rows.
const (
	ApiLogPromptMax       = 50000
	ApiLogResponseMax     = 50000
	ApiLogSystemPromptMax = 20000
)

// ApiLog records one LLM call, successful or not.
type ApiLog struct {
	ID           string
	RunID        *string
	ThreadID     *string
	Provider     string
	Model        string
	Method       string
	Prompt       string
	SystemPrompt *string
	Response     *string
	Error        *string
	DurationMS   int64
	TokensIn     *int
	TokensOut    *int
	CreatedAt    time.Time
}

// Listing source types for the voice-rx pipeline.
const (
	SourceUpload = "upload"
	SourceAPI    = "api"
)

// Listing is the aggregate root of the voice-rx flow: audio + transcript +
// structured API output + evaluator-run history + the ai_eval snapshot.
type Listing struct {
	ID            string
	AppID         string
	UserID        string
	Name          string
	SourceType    string
	AudioFile     *string
	AudioMIME     string
	Transcript    map[string]any
	APIResponse   map[string]any
	AIEval        map[string]any
	EvaluatorRuns []map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChatSession is the aggregate root of the chat-bot flow.
type ChatSession struct {
	ID            string
	AppID         string
	UserID        string
	Name          string
	Metadata      map[string]any
	EvaluatorRuns []map[string]any
	CreatedAt     time.Time
}

// SessionMessage is one persisted message of a chat session.
type SessionMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// FileRef records stored bytes by opaque blob path.
type FileRef struct {
	ID        string
	AppID     string
	UserID    string
	Name      string
	Path      string
	MIME      string
	Size      int64
	CreatedAt time.Time
}

// Prompt is a versioned prompt template.
type Prompt struct {
	ID         string
	AppID      string
	PromptType string
	Version    int
	UserID     string
	Name       string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SchemaDef is a versioned JSON schema document.
type SchemaDef struct {
	ID         string
	AppID      string
	SchemaType string
	Version    int
	UserID     string
	Name       string
	Content    map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EvaluatorField is one output field of a user-defined evaluator.
type EvaluatorField struct {
	Key             string         `json:"key"`
	Type            string         `json:"type"` // number | text | boolean | array
	Description     string         `json:"description,omitempty"`
	ArrayItemSchema map[string]any `json:"arrayItemSchema,omitempty"`
	Thresholds      map[string]any `json:"thresholds,omitempty"`
	DisplayMode     string         `json:"displayMode,omitempty"`
	IsMainMetric    bool           `json:"isMainMetric,omitempty"`
}

// Evaluator is a user-defined LLM evaluator: prompt, model hint, output fields.
type Evaluator struct {
	ID          string
	AppID       string
	UserID      string
	Name        string
	Description string
	Prompt      string
	Model       string
	Fields      []EvaluatorField
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HistoryEntry is one evaluation outcome record visible in entity history.
type HistoryEntry struct {
	ID         string
	EntityType string
	EntityID   string
	SourceType string
	SourceID   string
	EventType  string
	Scores     map[string]any
	Timestamp  time.Time
}

// Setting is one row of the settings keyspace, unique on (app_id, key, user_id).
type Setting struct {
	AppID     string
	Key       string
	UserID    string
	Value     map[string]any
	UpdatedAt time.Time
}
