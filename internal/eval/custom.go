package eval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/usecase"
)

// RunCustom handles evaluate-custom: one user-defined evaluator applied to
// one listing or chat session.
func (d Deps) RunCustom(ctx domain.Context, job domain.Job) (map[string]any, error) {
	params := job.Params
	evaluatorID := getString(params, "evaluator_id")
	listingID := getString(params, "listing_id")
	sessionID := getString(params, "session_id")
	if evaluatorID == "" {
		return nil, fmt.Errorf("%w: evaluator_id required", domain.ErrInvalidArgument)
	}
	runID, result, err := d.runCustomEvaluator(ctx, job.ID, getString(params, "app_id"), getString(params, "user_id"), evaluatorID, listingID, sessionID)
	if err != nil {
		return nil, err
	}
	_ = d.Jobs.UpdateProgress(ctx, job.ID, domain.Progress{
		Current: 1, Total: 1, Message: "Done", RunID: runID, ListingID: listingID, EvaluatorID: evaluatorID,
	})
	return map[string]any{"run_id": runID, "result": result}, nil
}

// runCustomEvaluator is the unit of work shared with the custom-batch
// runner. Exactly one of listingID/sessionID must be set.
func (d Deps) runCustomEvaluator(ctx domain.Context, jobID, appID, userID, evaluatorID, listingID, sessionID string) (string, map[string]any, error) {
	if (listingID == "") == (sessionID == "") {
		return "", nil, fmt.Errorf("%w: exactly one of listing_id, session_id required", domain.ErrInvalidArgument)
	}
	evaluator, err := d.Evaluators.Get(ctx, evaluatorID)
	if err != nil {
		return "", nil, err
	}
	schema, err := usecase.GenerateSchema(evaluator.Fields)
	if err != nil {
		return "", nil, err
	}

	pc, audio, audioMIME, err := d.assembleContext(ctx, listingID, sessionID)
	if err != nil {
		return "", nil, err
	}
	resolved := usecase.ResolvePrompt(evaluator.Prompt, pc)

	provider := d.NewAudited()
	run := domain.EvalRun{
		AppID:       appID,
		EvalType:    domain.EvalCustom,
		EvaluatorID: &evaluatorID,
		JobID:       &jobID,
		Status:      domain.RunPending,
		Provider:    provider.Provider(),
		Model:       provider.Model(),
		Config: map[string]any{
			"evaluatorName":       evaluator.Name,
			"modelHint":           evaluator.Model,
			"resolvedVariables":   resolved.Resolved,
			"unresolvedVariables": resolved.Unresolved,
		},
	}
	if listingID != "" {
		run.ListingID = &listingID
	} else {
		run.SessionID = &sessionID
	}
	runID, err := d.Runs.Create(ctx, run)
	if err != nil {
		return "", nil, err
	}
	if err := d.Runs.MarkRunning(ctx, runID); err != nil {
		return runID, nil, err
	}

	wrapper := d.NewAudited()
	wrapper.SetRunID(runID)
	if d.Probe != nil && jobID != "" && d.Probe.IsCancelled(ctx, jobID) {
		if ferr := d.Runs.Finalize(ctx, runID, domain.RunCancelled, "", nil, nil); ferr != nil {
			return runID, nil, ferr
		}
		return runID, nil, domain.ErrJobCancelled
	}

	wantsAudio := contains(resolved.Unresolved, usecase.AudioToken)
	var output map[string]any
	if wantsAudio && len(audio) > 0 {
		prompt := strings.ReplaceAll(resolved.Prompt, "{{"+usecase.AudioToken+"}}", usecase.AudioMarker)
		output, err = wrapper.GenerateWithAudio(ctx, prompt, audio, audioMIME, schema, domain.GenerateOpts{})
	} else {
		output, err = wrapper.GenerateJSON(ctx, resolved.Prompt, schema, domain.GenerateOpts{})
	}
	if err != nil {
		if errors.Is(err, domain.ErrJobCancelled) {
			_ = d.Runs.Finalize(ctx, runID, domain.RunCancelled, "", nil, nil)
			return runID, nil, err
		}
		d.finalizeFailed(ctx, runID, err)
		return runID, nil, err
	}

	scores := ExtractScores(evaluator.Fields, output)
	runRecord := map[string]any{
		"runId":         runID,
		"evaluatorId":   evaluator.ID,
		"evaluatorName": evaluator.Name,
		"result":        output,
		"scores":        scores,
		"createdAt":     time.Now().UTC().Format(time.RFC3339),
	}
	entityType, entityID := "listing", listingID
	if sessionID != "" {
		entityType, entityID = "chat_session", sessionID
		err = d.Sessions.AppendEvaluatorRun(ctx, sessionID, runRecord)
	} else {
		err = d.Listings.AppendEvaluatorRun(ctx, listingID, runRecord)
	}
	if err != nil {
		d.finalizeFailed(ctx, runID, err)
		return runID, nil, err
	}
	if _, err := d.History.Create(ctx, domain.HistoryEntry{
		EntityType: entityType,
		EntityID:   entityID,
		SourceType: "evaluator",
		SourceID:   evaluator.ID,
		EventType:  "custom_evaluation",
		Scores:     scores,
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		d.finalizeFailed(ctx, runID, err)
		return runID, nil, err
	}

	if err := d.Runs.Finalize(ctx, runID, domain.RunCompleted, "", output, map[string]any{"scores": scores}); err != nil {
		return runID, nil, err
	}
	return runID, output, nil
}

// assembleContext builds the prompt context from a listing (transcript +
// structured output + audio bytes) or a chat session (ordered messages).
func (d Deps) assembleContext(ctx domain.Context, listingID, sessionID string) (usecase.PromptContext, []byte, string, error) {
	if sessionID != "" {
		msgs, err := d.Sessions.Messages(ctx, sessionID)
		if err != nil {
			return usecase.PromptContext{}, nil, "", err
		}
		return usecase.PromptContext{ChatMessages: msgs}, nil, "", nil
	}

	listing, err := d.Listings.Get(ctx, listingID)
	if err != nil {
		return usecase.PromptContext{}, nil, "", err
	}
	pc := usecase.PromptContext{
		Transcript:  transcriptText(listing.Transcript),
		APIResponse: listing.APIResponse,
	}
	if llmT := getMap(listing.AIEval, "llmTranscript"); llmT != nil {
		pc.LLMTranscript = transcriptText(llmT)
	}
	var audio []byte
	var audioMIME string
	if listing.AudioFile != nil && *listing.AudioFile != "" {
		audio, err = d.Blobs.Read(ctx, *listing.AudioFile)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return usecase.PromptContext{}, nil, "", err
		}
		audioMIME = listing.AudioMIME
	}
	return pc, audio, audioMIME, nil
}

// transcriptText flattens a stored transcript document to plain text.
func transcriptText(doc map[string]any) string {
	if doc == nil {
		return ""
	}
	if text := getString(doc, "text"); text != "" {
		return text
	}
	segments, ok := doc["segments"].([]any)
	if !ok {
		return usecase.Stringify(doc)
	}
	var b strings.Builder
	for i, raw := range segments {
		seg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		if speaker := getString(seg, "speaker"); speaker != "" {
			b.WriteString(speaker)
			b.WriteString(": ")
		}
		b.WriteString(getString(seg, "text"))
	}
	return b.String()
}

// ExtractScores derives the history score document: the main-metric value as
// overall_score, a breakdown of non-hidden fields, the reasoning field found
// by name, and the main metric's thresholds.
func ExtractScores(fields []domain.EvaluatorField, output map[string]any) map[string]any {
	scores := map[string]any{}
	breakdown := map[string]any{}
	for _, f := range fields {
		value, present := output[f.Key]
		if !present {
			continue
		}
		if f.IsMainMetric {
			scores["overall_score"] = value
			if f.Thresholds != nil {
				scores["thresholds"] = f.Thresholds
			}
		}
		if f.DisplayMode != "hidden" {
			breakdown[f.Key] = value
		}
		if scores["reasoning"] == nil && isReasoningKey(f.Key) {
			scores["reasoning"] = value
		}
	}
	scores["breakdown"] = breakdown
	return scores
}

func isReasoningKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range []string{"reason", "explanation", "rationale", "justification"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
