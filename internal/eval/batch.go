package eval

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/usecase"
)

// RunBatch handles evaluate-batch: CSV in, one EvalRun with per-thread child
// rows out. Per-thread failures count into the summary without aborting the
// run.
func (d Deps) RunBatch(ctx domain.Context, job domain.Job) (map[string]any, error) {
	params := job.Params
	csvContent, _ := params["csv_content"].(string)
	if strings.TrimSpace(csvContent) == "" {
		return nil, fmt.Errorf("%w: csv_content required", domain.ErrInvalidArgument)
	}
	appID := getString(params, "app_id")
	userID := getString(params, "user_id")

	dataset, err := usecase.LoadCSV(strings.NewReader(csvContent))
	if err != nil {
		return nil, err
	}
	threadIDs := selectThreads(dataset, stringSliceParam(params, "thread_ids"), intParam(params, "sample_size", 0))
	if len(threadIDs) == 0 {
		return nil, fmt.Errorf("%w: no threads selected", domain.ErrInvalidArgument)
	}

	useIntent := boolParam(params, "intent_judge", true)
	useCorrectness := boolParam(params, "correctness_judge", true)
	useEfficiency := boolParam(params, "efficiency_judge", true)

	hash := sha256.Sum256([]byte(csvContent))
	dataFileHash := hex.EncodeToString(hash[:])

	provider := d.NewAudited()
	runID, err := d.Runs.Create(ctx, domain.EvalRun{
		AppID:    appID,
		EvalType: domain.EvalBatchThread,
		JobID:    &job.ID,
		Status:   domain.RunPending,
		Provider: provider.Provider(),
		Model:    provider.Model(),
		Config: map[string]any{
			"intentJudge":      useIntent,
			"correctnessJudge": useCorrectness,
			"efficiencyJudge":  useEfficiency,
			"threadCount":      len(threadIDs),
			"dataFileHash":     dataFileHash,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := d.Runs.MarkRunning(ctx, runID); err != nil {
		return nil, err
	}

	prompts := d.promptSource(appID, userID)
	worker := func(wctx domain.Context, _ int, threadID string) (domain.ThreadEvaluation, error) {
		thread, ok := dataset.Thread(threadID)
		if !ok {
			return domain.ThreadEvaluation{}, fmt.Errorf("%w: thread %s", domain.ErrNotFound, threadID)
		}
		wrapper := d.NewAudited()
		wrapper.SetRunID(runID)
		wrapper.SetThreadID(threadID)
		te, err := d.evaluateThread(wctx, wrapper, prompts, thread, useIntent, useCorrectness, useEfficiency)
		if err != nil {
			return domain.ThreadEvaluation{}, err
		}
		te.RunID = runID
		te.DataFileHash = dataFileHash
		if _, err := d.ThreadEvals.Create(wctx, te); err != nil {
			return domain.ThreadEvaluation{}, err
		}
		return te, nil
	}

	outcomes, itemErrs, runErr := RunParallel(ctx, threadIDs, worker, ParallelOpts{
		Concurrency:    d.concurrencyOrDefault(intParam(params, "concurrency", 0)),
		JobID:          job.ID,
		InterItemDelay: secondsParam(params, "inter_item_delay", 0),
		Probe:          d.Probe,
		OnProgress:     d.progressFn(ctx, job.ID, runID),
	})
	if errors.Is(runErr, domain.ErrJobCancelled) {
		if err := d.Runs.Finalize(ctx, runID, domain.RunCancelled, "", nil, nil); err != nil {
			slog.Error("finalize cancelled run failed", slog.Any("error", err), slog.String("run_id", runID))
		}
		return nil, domain.ErrJobCancelled
	}

	summary := summarizeBatch(threadIDs, outcomes, itemErrs)
	if err := d.Runs.Finalize(ctx, runID, domain.RunCompleted, "", nil, summary); err != nil {
		return nil, err
	}
	return map[string]any{"run_id": runID, "summary": summary}, nil
}

// selectThreads applies explicit ids, a random sample, or everything.
func selectThreads(dataset *usecase.Dataset, explicit []string, sampleSize int) []string {
	all := dataset.ThreadIDs()
	if len(explicit) > 0 {
		existing := make([]string, 0, len(explicit))
		for _, id := range explicit {
			if _, ok := dataset.Thread(id); ok {
				existing = append(existing, id)
			}
		}
		return existing
	}
	if sampleSize > 0 && sampleSize < len(all) {
		shuffled := make([]string, len(all))
		copy(shuffled, all)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return shuffled[:sampleSize]
	}
	return all
}

// evaluateThread runs the selected judges over one conversation thread.
func (d Deps) evaluateThread(ctx domain.Context, llm AuditedClient, prompts *PromptSource, thread usecase.ConversationThread, useIntent, useCorrectness, useEfficiency bool) (domain.ThreadEvaluation, error) {
	te := domain.ThreadEvaluation{ThreadID: thread.ThreadID}
	result := map[string]any{}

	if useIntent {
		judge := NewIntentJudge(llm, prompts)
		correct, total := 0, 0
		var details []any
		for _, msg := range thread.Messages {
			if !msg.IsUser() || msg.Message == "" {
				continue
			}
			res, err := judge.EvaluateMessage(ctx, msg)
			if err != nil {
				return te, err
			}
			total++
			if res.IsCorrectIntent {
				correct++
			}
			details = append(details, map[string]any{
				"message":            msg.Message,
				"expectedAgent":      res.ExpectedAgent,
				"queryType":          res.QueryType,
				"isCorrectIntent":    res.IsCorrectIntent,
				"isCorrectQueryType": res.IsCorrectQueryType,
				"reasoning":          res.Reasoning,
			})
		}
		if total > 0 {
			accuracy := float64(correct) / float64(total)
			te.IntentAccuracy = &accuracy
		}
		result["intent"] = details
	}

	if useCorrectness {
		judge := NewCorrectnessJudge(llm, prompts)
		var verdicts []string
		var details []any
		recentImage := false
		for i, msg := range thread.Messages {
			if msg.IsUser() {
				if msg.HasImage || strings.Contains(strings.ToLower(msg.Message), imageTag) {
					recentImage = true
				}
				continue
			}
			if !usecaseMealSummary(msg.Message) || i == 0 {
				continue
			}
			res, err := judge.EvaluatePair(ctx, thread.Messages[i-1], msg, recentImage)
			if err != nil {
				return te, err
			}
			recentImage = false
			verdicts = append(verdicts, res.Verdict)
			details = append(details, map[string]any{
				"verdict":           res.Verdict,
				"calorieSanity":     res.CalorieSanity,
				"macroArithmetic":   res.MacroArithmetic,
				"quantityCoherence": res.QuantityCoherence,
				"quantitySuppress":  res.QuantitySuppress,
				"regraded":          res.Regraded,
				"reasoning":         res.Reasoning,
			})
		}
		te.WorstCorrectness = domain.WorstVerdict(verdicts)
		result["correctness"] = details
	}

	if useEfficiency {
		judge := NewEfficiencyJudge(llm, prompts)
		res, err := judge.EvaluateThread(ctx, thread)
		if err != nil {
			return te, err
		}
		te.EfficiencyVerdict = res.Verdict
		result["efficiency"] = map[string]any{
			"verdict":           res.Verdict,
			"userFrictionTurns": res.UserFrictionTurn,
			"botFrictionTurns":  res.BotFrictionTurns,
			"reasoning":         res.Reasoning,
		}
	}

	if thread.IsSuccessful {
		te.SuccessStatus = "success"
	} else {
		te.SuccessStatus = "failure"
	}
	te.Result = result
	return te, nil
}

// usecaseMealSummary mirrors the loader's meal-summary detection for bot
// responses.
func usecaseMealSummary(message string) bool {
	lower := strings.ToLower(message)
	for _, ind := range []string{"meal summary", "calories", "protein", "carbs", "nutritional breakdown"} {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// summarizeBatch aggregates verdict histograms and accuracy over settled
// items.
func summarizeBatch(threadIDs []string, outcomes []domain.ThreadEvaluation, itemErrs []error) map[string]any {
	completed, errCount := 0, 0
	correctnessHist := map[string]int{}
	efficiencyHist := map[string]int{}
	var worstVerdicts []string
	intentSum, intentCount := 0.0, 0

	for i := range threadIDs {
		if itemErrs[i] != nil {
			errCount++
			continue
		}
		completed++
		te := outcomes[i]
		if te.WorstCorrectness != "" {
			correctnessHist[te.WorstCorrectness]++
			worstVerdicts = append(worstVerdicts, te.WorstCorrectness)
		}
		if te.EfficiencyVerdict != "" {
			efficiencyHist[te.EfficiencyVerdict]++
		}
		if te.IntentAccuracy != nil {
			intentSum += *te.IntentAccuracy
			intentCount++
		}
	}

	summary := map[string]any{
		"total_threads":         len(threadIDs),
		"completed":             completed,
		"errors":                errCount,
		"correctness_histogram": correctnessHist,
		"efficiency_histogram":  efficiencyHist,
		"worst_correctness":     domain.WorstVerdict(worstVerdicts),
	}
	if intentCount > 0 {
		summary["avg_intent_accuracy"] = intentSum / float64(intentCount)
	}
	return summary
}
