package eval

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/usecase"
)

// Schema types for the voice-rx pipeline; saved schemas of the same type
// override the defaults.
const (
	SchemaVoiceRxTranscript    = "voice_rx_transcription"
	SchemaVoiceRxNormalization = "voice_rx_normalization"
	SchemaVoiceRxCritique      = "voice_rx_critique"
	SchemaVoiceRxAPIExtraction = "voice_rx_api_extraction"
	SchemaVoiceRxAPICritique   = "voice_rx_api_critique"
)

var segmentItemSchema = schemaObject(map[string]any{
	"speaker": schemaString(""),
	"start":   schemaNumber(),
	"end":     schemaNumber(),
	"text":    schemaString(""),
})

var defaultSchemas = map[string]map[string]any{
	SchemaVoiceRxTranscript: schemaObject(map[string]any{
		"segments": schemaArray(segmentItemSchema),
	}),
	SchemaVoiceRxNormalization: schemaObject(map[string]any{
		"segments": schemaArray(segmentItemSchema),
	}),
	SchemaVoiceRxCritique: schemaObject(map[string]any{
		"discrepancy_indices": schemaArray(schemaNumber()),
		"discrepancies": schemaArray(schemaObject(map[string]any{
			"index":       schemaNumber(),
			"severity":    schemaEnum("minor", "moderate", "critical"),
			"description": schemaString(""),
		})),
		"summary": schemaString(""),
		"verdict": schemaEnum(domain.VerdictPass, domain.VerdictSoftFail, domain.VerdictHardFail, domain.VerdictCritical),
	}),
	SchemaVoiceRxAPIExtraction: schemaObject(map[string]any{
		"input": schemaString("patient's described input"),
		"rx":    map[string]any{"type": "object"},
	}),
	SchemaVoiceRxAPICritique: schemaObject(map[string]any{
		"verdict": schemaEnum(domain.VerdictPass, domain.VerdictSoftFail, domain.VerdictHardFail, domain.VerdictCritical),
		"field_findings": schemaArray(schemaObject(map[string]any{
			"field":                 schemaString(""),
			"clinically_equivalent": schemaBool(),
			"comment":               schemaString(""),
		})),
		"summary": schemaString(""),
	}),
}

// schemaFor loads the active schema for a type, preferring a saved one.
func (d Deps) schemaFor(ctx domain.Context, appID, userID, schemaType string) map[string]any {
	if d.Schemas != nil {
		if s, err := d.Schemas.GetByType(ctx, appID, schemaType, userID); err == nil && s.Content != nil {
			return s.Content
		}
	}
	return defaultSchemas[schemaType]
}

// RunVoiceRx handles evaluate-voice-rx. The listing's source_type selects
// the upload flow (transcribe, normalize, critique) or the API flow
// (extract, compose, compare).
func (d Deps) RunVoiceRx(ctx domain.Context, job domain.Job) (map[string]any, error) {
	params := job.Params
	listingID := getString(params, "listing_id")
	if listingID == "" {
		return nil, fmt.Errorf("%w: listing_id required", domain.ErrInvalidArgument)
	}
	appID := getString(params, "app_id")
	userID := getString(params, "user_id")

	listing, err := d.Listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}

	provider := d.NewAudited()
	runID, err := d.Runs.Create(ctx, domain.EvalRun{
		AppID:     appID,
		EvalType:  domain.EvalFullEvaluation,
		ListingID: &listingID,
		JobID:     &job.ID,
		Status:    domain.RunPending,
		Provider:  provider.Provider(),
		Model:     provider.Model(),
		Config: map[string]any{
			"sourceType":        listing.SourceType,
			"skipTranscription": boolParam(params, "skip_transcription", false),
		},
	})
	if err != nil {
		return nil, err
	}
	if err := d.Runs.MarkRunning(ctx, runID); err != nil {
		return nil, err
	}

	wrapper := d.NewAudited()
	wrapper.SetRunID(runID)
	wrapper.SetThreadID(listingID)
	progress := func(current, total int, message string) {
		_ = d.Jobs.UpdateProgress(ctx, job.ID, domain.Progress{
			Current: current, Total: total, Message: message, RunID: runID, ListingID: listingID,
		})
	}

	var aiEval map[string]any
	switch listing.SourceType {
	case domain.SourceAPI:
		aiEval, err = d.voiceRxAPIFlow(ctx, wrapper, job, listing, appID, userID, progress)
	default:
		aiEval, err = d.voiceRxUploadFlow(ctx, wrapper, job, listing, params, appID, userID, progress)
	}
	if err != nil {
		if errors.Is(err, domain.ErrJobCancelled) {
			d.writeAIEval(ctx, listingID, map[string]any{"status": "cancelled", "runId": runID})
			_ = d.Runs.Finalize(ctx, runID, domain.RunCancelled, "", nil, nil)
			return nil, err
		}
		d.writeAIEval(ctx, listingID, map[string]any{"status": "failed", "error": err.Error(), "runId": runID})
		d.finalizeFailed(ctx, runID, err)
		return nil, err
	}

	aiEval["status"] = "completed"
	aiEval["runId"] = runID
	if err := d.Listings.SetAIEval(ctx, listingID, aiEval); err != nil {
		d.finalizeFailed(ctx, runID, err)
		return nil, err
	}
	if err := d.Runs.Finalize(ctx, runID, domain.RunCompleted, "", aiEval, nil); err != nil {
		return nil, err
	}
	return map[string]any{"run_id": runID, "listing_id": listingID}, nil
}

// writeAIEval best-effort persists a terminal snapshot; the job status is
// the authoritative record.
func (d Deps) writeAIEval(ctx domain.Context, listingID string, aiEval map[string]any) {
	if err := d.Listings.SetAIEval(ctx, listingID, aiEval); err != nil {
		slog.Error("ai_eval snapshot write failed", slog.Any("error", err), slog.String("listing_id", listingID))
	}
}

func (d Deps) checkCancelled(ctx domain.Context, jobID string) error {
	if d.Probe != nil && jobID != "" && d.Probe.IsCancelled(ctx, jobID) {
		return domain.ErrJobCancelled
	}
	return nil
}

// voiceRxUploadFlow: transcribe (or reuse), optionally normalize, critique
// with server-computed statistics.
func (d Deps) voiceRxUploadFlow(ctx domain.Context, wrapper AuditedClient, job domain.Job, listing domain.Listing, params map[string]any, appID, userID string, progress func(int, int, string)) (map[string]any, error) {
	prompts := d.promptSource(appID, userID)
	scriptPreference := getString(params, "script_preference")
	totalSteps := 3

	// Step 1: segment-aligned reference transcript.
	var llmTranscript map[string]any
	if boolParam(params, "skip_transcription", false) {
		llmTranscript = getMap(listing.AIEval, "llmTranscript")
		if llmTranscript == nil {
			return nil, fmt.Errorf("%w: skip_transcription set but no previous llmTranscript", domain.ErrInvalidArgument)
		}
	} else {
		if err := d.checkCancelled(ctx, job.ID); err != nil {
			return nil, err
		}
		if listing.AudioFile == nil || *listing.AudioFile == "" {
			return nil, fmt.Errorf("%w: listing has no audio file", domain.ErrInvalidArgument)
		}
		audio, err := d.Blobs.Read(ctx, *listing.AudioFile)
		if err != nil {
			return nil, err
		}
		prompt := strings.ReplaceAll(prompts.Get(ctx, PromptVoiceRxTranscription), "{{"+usecase.AudioToken+"}}", usecase.AudioMarker)
		llmTranscript, err = wrapper.GenerateWithAudio(ctx, prompt, audio, listing.AudioMIME, d.schemaFor(ctx, appID, userID, SchemaVoiceRxTranscript), domain.GenerateOpts{ThinkingLevel: "low"})
		if err != nil {
			return nil, err
		}
	}
	progress(1, totalSteps, "Transcription complete")

	aiEval := map[string]any{"llmTranscript": llmTranscript}
	referenceSegments := segmentList(llmTranscript)

	// Step 2: optional transliteration of the original transcript.
	if scriptPreference != "" {
		if err := d.checkCancelled(ctx, job.ID); err != nil {
			return nil, err
		}
		normalized, err := d.normalizeTranscript(ctx, wrapper, prompts, llmTranscript, params, appID, userID)
		if err != nil {
			return nil, err
		}
		aiEval["normalizedTranscript"] = normalized
		referenceSegments = segmentList(normalized)
	}
	progress(2, totalSteps, "Normalization complete")

	// Step 3: critique, text-only, against the service transcript.
	if err := d.checkCancelled(ctx, job.ID); err != nil {
		return nil, err
	}
	critique, err := d.critiqueTranscripts(ctx, wrapper, prompts, listing, referenceSegments, appID, userID)
	if err != nil {
		return nil, err
	}
	aiEval["critique"] = critique
	progress(3, totalSteps, "Critique complete")
	return aiEval, nil
}

// normalizeTranscript transliterates the reference transcript into the
// target script, preserving segment count and the original time anchors.
func (d Deps) normalizeTranscript(ctx domain.Context, wrapper AuditedClient, prompts *PromptSource, llmTranscript map[string]any, params map[string]any, appID, userID string) (map[string]any, error) {
	original := segmentList(llmTranscript)
	prompt := fill(prompts.Get(ctx, PromptVoiceRxNormalization), map[string]string{
		"script_preference":       getString(params, "script_preference"),
		"language_hint":           getString(params, "language_hint"),
		"preserve_code_switching": fmt.Sprintf("%t", boolParam(params, "preserve_code_switching", true)),
		"original_script":         formatSegments(original),
	})
	out, err := wrapper.GenerateJSON(ctx, prompt, d.schemaFor(ctx, appID, userID, SchemaVoiceRxNormalization), domain.GenerateOpts{})
	if err != nil {
		return nil, err
	}
	normalized := segmentList(out)
	if len(normalized) != len(original) {
		return nil, fmt.Errorf("%w: normalization changed segment count from %d to %d", domain.ErrUpstream, len(original), len(normalized))
	}
	// time anchors come from the original transcript, not the model
	for i := range normalized {
		normalized[i]["start"] = original[i]["start"]
		normalized[i]["end"] = original[i]["end"]
	}
	return map[string]any{"segments": anySlice(normalized)}, nil
}

// critiqueTranscripts runs the text-only critique with a server-built
// segment table; statistics are computed from actual counts, never from the
// model.
func (d Deps) critiqueTranscripts(ctx domain.Context, wrapper AuditedClient, prompts *PromptSource, listing domain.Listing, referenceSegments []map[string]any, appID, userID string) (map[string]any, error) {
	serviceSegments := segmentList(listing.Transcript)
	prompt := fill(prompts.Get(ctx, PromptVoiceRxCritique), map[string]string{
		"llm_transcript": formatSegments(referenceSegments),
		"transcript":     formatSegments(serviceSegments),
		"segment_table":  segmentTable(serviceSegments, referenceSegments),
	})
	out, err := wrapper.GenerateJSON(ctx, prompt, d.schemaFor(ctx, appID, userID, SchemaVoiceRxCritique), domain.GenerateOpts{ThinkingLevel: "medium"})
	if err != nil {
		return nil, err
	}

	totalSegments := len(referenceSegments)
	indices := dedupeInRange(getIntSlice(out, "discrepancy_indices"), totalSegments)
	bySeverity := map[string]int{}
	if discrepancies, ok := out["discrepancies"].([]any); ok {
		for _, raw := range discrepancies {
			if m, ok := raw.(map[string]any); ok {
				if sev := getString(m, "severity"); sev != "" {
					bySeverity[sev]++
				}
			}
		}
	}
	out["statistics"] = map[string]any{
		"totalSegments":    totalSegments,
		"matchCount":       totalSegments - len(indices),
		"discrepancyCount": len(indices),
		"bySeverity":       bySeverity,
	}
	out["discrepancy_indices"] = intAnySlice(indices)
	return out, nil
}

// voiceRxAPIFlow: extract {input, rx} from audio, then judge the service's
// structured output against it field by field.
func (d Deps) voiceRxAPIFlow(ctx domain.Context, wrapper AuditedClient, job domain.Job, listing domain.Listing, appID, userID string, progress func(int, int, string)) (map[string]any, error) {
	prompts := d.promptSource(appID, userID)
	if err := d.checkCancelled(ctx, job.ID); err != nil {
		return nil, err
	}
	if listing.AudioFile == nil || *listing.AudioFile == "" {
		return nil, fmt.Errorf("%w: listing has no audio file", domain.ErrInvalidArgument)
	}
	audio, err := d.Blobs.Read(ctx, *listing.AudioFile)
	if err != nil {
		return nil, err
	}

	prompt := strings.ReplaceAll(prompts.Get(ctx, PromptVoiceRxAPIExtraction), "{{"+usecase.AudioToken+"}}", usecase.AudioMarker)
	llmStructured, err := wrapper.GenerateWithAudio(ctx, prompt, audio, listing.AudioMIME, d.schemaFor(ctx, appID, userID, SchemaVoiceRxAPIExtraction), domain.GenerateOpts{ThinkingLevel: "low"})
	if err != nil {
		return nil, err
	}
	progress(1, 2, "Extraction complete")

	apiRx := getMap(listing.APIResponse, "rx")
	judgeRx := getMap(llmStructured, "rx")
	entries := usecase.CompareRx(apiRx, judgeRx)

	if err := d.checkCancelled(ctx, job.ID); err != nil {
		return nil, err
	}
	critiquePrompt := fill(prompts.Get(ctx, PromptVoiceRxAPICritique), map[string]string{
		"comparison_table": usecase.FormatComparisonTable(entries),
		"api_rx":           usecase.Stringify(listing.APIResponse),
		"llm_structured":   usecase.Stringify(llmStructured),
	})
	parsed, err := wrapper.GenerateJSON(ctx, critiquePrompt, d.schemaFor(ctx, appID, userID, SchemaVoiceRxAPICritique), domain.GenerateOpts{ThinkingLevel: "medium"})
	if err != nil {
		return nil, err
	}
	progress(2, 2, "Critique complete")

	apiCritique := map[string]any{
		"verdict":       getString(parsed, "verdict"),
		"fieldFindings": parsed["field_findings"],
		"summary":       getString(parsed, "summary"),
		"raw":           parsed,
	}
	comparison := make([]any, 0, len(entries))
	for _, e := range entries {
		m, err := toMap(e)
		if err != nil {
			continue
		}
		comparison = append(comparison, m)
	}
	return map[string]any{
		"llmStructured": llmStructured,
		"apiCritique":   apiCritique,
		"comparison":    comparison,
	}, nil
}

// segmentList extracts transcript segments as maps.
func segmentList(doc map[string]any) []map[string]any {
	if doc == nil {
		return nil
	}
	raw, ok := doc["segments"].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func formatSegments(segments []map[string]any) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%d] %s: %s", i, getString(seg, "speaker"), getString(seg, "text"))
	}
	return b.String()
}

// segmentTable pairs service and reference segments positionally for the
// critique prompt.
func segmentTable(service, reference []map[string]any) string {
	n := len(service)
	if len(reference) > n {
		n = len(reference)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		svc, ref := "(missing)", "(missing)"
		if i < len(service) {
			svc = getString(service[i], "text")
		}
		if i < len(reference) {
			ref = getString(reference[i], "text")
		}
		fmt.Fprintf(&b, "[%d] service=%q reference=%q\n", i, svc, ref)
	}
	return b.String()
}

// dedupeInRange keeps unique indices within [0, total).
func dedupeInRange(indices []int, total int) []int {
	seen := map[int]bool{}
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= total || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}

func intAnySlice(in []int) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func anySlice(in []map[string]any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
