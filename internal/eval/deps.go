package eval

import (
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// AuditedClient is a provider wrapped with api_log persistence; runners set
// the run and thread context as they move through items.
type AuditedClient interface {
	domain.LLMClient
	SetRunID(runID string)
	SetThreadID(threadID string)
}

// Deps wires the runners to storage and providers. NewAudited returns a
// fresh wrapper; runners allocate one per run (and one per parallel item so
// thread attribution never races).
type Deps struct {
	Jobs        domain.JobRepository
	Runs        domain.EvalRunRepository
	ThreadEvals domain.ThreadEvalRepository
	AdvEvals    domain.AdversarialEvalRepository
	ApiLogs     domain.ApiLogRepository
	Settings    domain.SettingsRepository
	Listings    domain.ListingRepository
	Sessions    domain.SessionRepository
	Evaluators  domain.EvaluatorRepository
	Prompts     domain.PromptRepository
	Schemas     domain.SchemaRepository
	History     domain.HistoryRepository
	Blobs       domain.BlobStore
	Chat        domain.ChatAPI
	Probe       *CancelRegistry
	NewAudited  func() AuditedClient
	// NewChat builds a chat client for credentials saved in settings; nil
	// falls back to Chat.
	NewChat func(url, apiKey string) domain.ChatAPI
	Cfg     config.Config
}

// promptSource builds the per-request prompt loader.
func (d Deps) promptSource(appID, userID string) *PromptSource {
	return NewPromptSource(d.Prompts, appID, userID)
}

// progressFn returns the job-progress callback used by the parallel engine.
func (d Deps) progressFn(ctx domain.Context, jobID, runID string) func(completed, total int, message string) {
	return func(completed, total int, message string) {
		_ = d.Jobs.UpdateProgress(ctx, jobID, domain.Progress{
			Current: completed,
			Total:   total,
			Message: message,
			RunID:   runID,
		})
	}
}

// concurrencyOrDefault resolves the effective fan-out for a job.
func (d Deps) concurrencyOrDefault(requested int) int {
	if requested > 0 {
		return requested
	}
	if d.Cfg.DefaultConcurrency > 0 {
		return d.Cfg.DefaultConcurrency
	}
	return 1
}

// secondsParam reads a float seconds value as a duration.
func secondsParam(params map[string]any, key string, fallback time.Duration) time.Duration {
	if f, ok := getFloat(params, key); ok && f >= 0 {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	if f, ok := getFloat(params, key); ok {
		return int(f)
	}
	return fallback
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if b, ok := params[key].(bool); ok {
		return b
	}
	return fallback
}

func stringSliceParam(params map[string]any, key string) []string {
	arr, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
