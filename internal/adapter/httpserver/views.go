package httpserver

import (
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// jobView is the camelCase wire form of a job. Params is a sanitized copy:
// csv_content can be megabytes and is never echoed back.
type jobView struct {
	ID           string          `json:"id"`
	JobType      string          `json:"jobType"`
	Status       string          `json:"status"`
	Params       map[string]any  `json:"params,omitempty"`
	Progress     domain.Progress `json:"progress"`
	Result       map[string]any  `json:"result,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

func toJobView(j domain.Job) jobView {
	return jobView{
		ID:           j.ID,
		JobType:      string(j.JobType),
		Status:       string(j.Status),
		Params:       sanitizeParams(j.Params),
		Progress:     j.Progress,
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

func sanitizeParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "csv_content" {
			continue
		}
		out[k] = v
	}
	return out
}

// toRunView renders an eval run with camelCase keys. Batch and adversarial
// rows additionally carry snake_case duplicates for legacy clients, so this
// returns a map rather than a struct.
func toRunView(r domain.EvalRun) map[string]any {
	m := map[string]any{
		"id":        r.ID,
		"appId":     r.AppID,
		"evalType":  string(r.EvalType),
		"status":    string(r.Status),
		"provider":  r.Provider,
		"model":     r.Model,
		"createdAt": r.CreatedAt,
	}
	if r.ListingID != nil {
		m["listingId"] = *r.ListingID
	}
	if r.SessionID != nil {
		m["sessionId"] = *r.SessionID
	}
	if r.EvaluatorID != nil {
		m["evaluatorId"] = *r.EvaluatorID
	}
	if r.JobID != nil {
		m["jobId"] = *r.JobID
	}
	if r.ErrorMessage != "" {
		m["errorMessage"] = r.ErrorMessage
	}
	if r.StartedAt != nil {
		m["startedAt"] = *r.StartedAt
	}
	if r.CompletedAt != nil {
		m["completedAt"] = *r.CompletedAt
	}
	if r.DurationMS != nil {
		m["durationMs"] = *r.DurationMS
	}
	if r.Config != nil {
		m["config"] = r.Config
	}
	if r.Result != nil {
		m["result"] = r.Result
	}
	if r.Summary != nil {
		m["summary"] = r.Summary
	}
	if r.BatchMetadata != nil {
		m["batchMetadata"] = r.BatchMetadata
	}
	if r.EvalType == domain.EvalBatchThread || r.EvalType == domain.EvalBatchAdversarial {
		addSnakeDuplicates(m)
	}
	return m
}

// snakeDuplicates maps camelCase response keys to the snake_case aliases the
// legacy batch dashboard reads.
var snakeDuplicates = map[string]string{
	"appId":            "app_id",
	"evalType":         "eval_type",
	"listingId":        "listing_id",
	"sessionId":        "session_id",
	"evaluatorId":      "evaluator_id",
	"jobId":            "job_id",
	"errorMessage":     "error_message",
	"startedAt":        "started_at",
	"completedAt":      "completed_at",
	"durationMs":       "duration_ms",
	"batchMetadata":    "batch_metadata",
	"createdAt":        "created_at",
	"runId":            "run_id",
	"threadId":         "thread_id",
	"dataFileHash":     "data_file_hash",
	"intentAccuracy":   "intent_accuracy",
	"worstCorrectness": "worst_correctness",
	"efficiencyVerdict": "efficiency_verdict",
	"successStatus":    "success_status",
	"goalAchieved":     "goal_achieved",
	"totalTurns":       "total_turns",
}

func addSnakeDuplicates(m map[string]any) {
	for camel, snake := range snakeDuplicates {
		if v, ok := m[camel]; ok {
			m[snake] = v
		}
	}
}

func toThreadEvalView(te domain.ThreadEvaluation) map[string]any {
	m := map[string]any{
		"id":                te.ID,
		"runId":             te.RunID,
		"threadId":          te.ThreadID,
		"worstCorrectness":  te.WorstCorrectness,
		"efficiencyVerdict": te.EfficiencyVerdict,
		"successStatus":     te.SuccessStatus,
		"createdAt":         te.CreatedAt,
	}
	if te.DataFileHash != "" {
		m["dataFileHash"] = te.DataFileHash
	}
	if te.IntentAccuracy != nil {
		m["intentAccuracy"] = *te.IntentAccuracy
	}
	if te.Result != nil {
		m["result"] = te.Result
	}
	addSnakeDuplicates(m)
	return m
}

func toAdvEvalView(ae domain.AdversarialEvaluation) map[string]any {
	m := map[string]any{
		"id":           ae.ID,
		"runId":        ae.RunID,
		"category":     ae.Category,
		"difficulty":   ae.Difficulty,
		"verdict":      ae.Verdict,
		"goalAchieved": ae.GoalAchieved,
		"totalTurns":   ae.TotalTurns,
		"createdAt":    ae.CreatedAt,
	}
	if ae.Result != nil {
		m["result"] = ae.Result
	}
	addSnakeDuplicates(m)
	return m
}

// apiLogView is the camelCase wire form of one LLM call record.
type apiLogView struct {
	ID           string    `json:"id"`
	RunID        *string   `json:"runId,omitempty"`
	ThreadID     *string   `json:"threadId,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Method       string    `json:"method"`
	Prompt       string    `json:"prompt"`
	SystemPrompt *string   `json:"systemPrompt,omitempty"`
	Response     *string   `json:"response,omitempty"`
	Error        *string   `json:"error,omitempty"`
	DurationMS   int64     `json:"durationMs"`
	TokensIn     *int      `json:"tokensIn,omitempty"`
	TokensOut    *int      `json:"tokensOut,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toApiLogView(l domain.ApiLog) apiLogView {
	return apiLogView{
		ID:           l.ID,
		RunID:        l.RunID,
		ThreadID:     l.ThreadID,
		Provider:     l.Provider,
		Model:        l.Model,
		Method:       l.Method,
		Prompt:       l.Prompt,
		SystemPrompt: l.SystemPrompt,
		Response:     l.Response,
		Error:        l.Error,
		DurationMS:   l.DurationMS,
		TokensIn:     l.TokensIn,
		TokensOut:    l.TokensOut,
		CreatedAt:    l.CreatedAt,
	}
}

// fileView is the camelCase wire form of a stored file reference.
type fileView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MIME      string    `json:"mime"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

func toFileView(f domain.FileRef) fileView {
	return fileView{ID: f.ID, Name: f.Name, MIME: f.MIME, Size: f.Size, CreatedAt: f.CreatedAt}
}
