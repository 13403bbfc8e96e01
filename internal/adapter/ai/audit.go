package ai

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// Audited wraps a provider and records one api_log row per call, success or
// failure. Runners allocate one wrapper per run and mutate the thread id
// between items from a single goroutine.
type Audited struct {
	inner    domain.LLMClient
	logs     domain.ApiLogRepository
	runID    *string
	threadID *string
}

// NewAudited wraps a provider with api_log persistence.
func NewAudited(inner domain.LLMClient, logs domain.ApiLogRepository) *Audited {
	return &Audited{inner: inner, logs: logs}
}

// SetRunID sets the run attributed to subsequent calls.
func (a *Audited) SetRunID(runID string) {
	if runID == "" {
		a.runID = nil
		return
	}
	a.runID = &runID
}

// SetThreadID sets the thread attributed to subsequent calls.
func (a *Audited) SetThreadID(threadID string) {
	if threadID == "" {
		a.threadID = nil
		return
	}
	a.threadID = &threadID
}

// Provider reports the wrapped provider family.
func (a *Audited) Provider() string { return a.inner.Provider() }

// Model reports the wrapped model name.
func (a *Audited) Model() string { return a.inner.Model() }

// Generate delegates and audits.
func (a *Audited) Generate(ctx domain.Context, prompt string, opts domain.GenerateOpts) (string, error) {
	start := time.Now()
	text, err := a.inner.Generate(ctx, prompt, opts)
	a.record(ctx, domain.MethodGenerate, prompt, opts.SystemPrompt, text, err, start)
	return text, err
}

// GenerateJSON delegates and audits; the response column holds the
// re-serialized object.
func (a *Audited) GenerateJSON(ctx domain.Context, prompt string, schema map[string]any, opts domain.GenerateOpts) (map[string]any, error) {
	start := time.Now()
	obj, err := a.inner.GenerateJSON(ctx, prompt, schema, opts)
	a.record(ctx, domain.MethodGenerateJSON, prompt, opts.SystemPrompt, marshalForLog(obj), err, start)
	return obj, err
}

// GenerateWithAudio delegates and audits. Audio bytes are never logged.
func (a *Audited) GenerateWithAudio(ctx domain.Context, prompt string, audio []byte, mimeType string, schema map[string]any, opts domain.GenerateOpts) (map[string]any, error) {
	start := time.Now()
	obj, err := a.inner.GenerateWithAudio(ctx, prompt, audio, mimeType, schema, opts)
	a.record(ctx, domain.MethodGenerateWithAudio, prompt, opts.SystemPrompt, marshalForLog(obj), err, start)
	return obj, err
}

// record writes the api_log row. Persistence failures are logged and
// swallowed so auditing never breaks the call graph.
func (a *Audited) record(ctx domain.Context, method, prompt, systemPrompt, response string, callErr error, start time.Time) {
	durationMS := time.Since(start).Milliseconds()
	outcome := "ok"
	if callErr != nil {
		outcome = "error"
	}
	observability.LLMCallsTotal.WithLabelValues(a.Provider(), method, outcome).Inc()
	observability.LLMCallDuration.WithLabelValues(a.Provider(), method).Observe(time.Since(start).Seconds())

	entry := domain.ApiLog{
		RunID:      a.runID,
		ThreadID:   a.threadID,
		Provider:   a.Provider(),
		Model:      a.Model(),
		Method:     method,
		Prompt:     prompt,
		DurationMS: durationMS,
		CreatedAt:  time.Now().UTC(),
	}
	if systemPrompt != "" {
		entry.SystemPrompt = &systemPrompt
	}
	if response != "" {
		entry.Response = &response
	}
	if callErr != nil {
		msg := callErr.Error()
		entry.Error = &msg
	}
	if _, err := a.logs.Create(ctx, entry); err != nil {
		slog.Error("api log persistence failed",
			slog.Any("error", err),
			slog.String("provider", entry.Provider),
			slog.String("method", method))
	}
}

func marshalForLog(obj map[string]any) string {
	if obj == nil {
		return ""
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(b)
}
