package eval

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// RunCustomBatch handles evaluate-custom-batch: one custom sub-run per
// existing evaluator id, parallel by default.
func (d Deps) RunCustomBatch(ctx domain.Context, job domain.Job) (map[string]any, error) {
	params := job.Params
	requested := stringSliceParam(params, "evaluator_ids")
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: evaluator_ids required", domain.ErrInvalidArgument)
	}
	listingID := getString(params, "listing_id")
	sessionID := getString(params, "session_id")
	appID := getString(params, "app_id")
	userID := getString(params, "user_id")

	evaluatorIDs, err := d.Evaluators.ExistingIDs(ctx, requested)
	if err != nil {
		return nil, err
	}
	if len(evaluatorIDs) == 0 {
		return nil, fmt.Errorf("%w: none of the evaluator ids exist", domain.ErrInvalidArgument)
	}

	worker := func(wctx domain.Context, _ int, evaluatorID string) (string, error) {
		runID, _, err := d.runCustomEvaluator(wctx, job.ID, appID, userID, evaluatorID, listingID, sessionID)
		return runID, err
	}
	runIDs, itemErrs, runErr := RunParallel(ctx, evaluatorIDs, worker, ParallelOpts{
		Concurrency:    d.concurrencyOrDefault(intParam(params, "concurrency", 0)),
		JobID:          job.ID,
		InterItemDelay: secondsParam(params, "inter_item_delay", 0),
		Probe:          d.Probe,
		OnProgress:     d.progressFn(ctx, job.ID, ""),
		MessageFn: func(ok, errs, completed, total int) string {
			return fmt.Sprintf("Evaluator %d/%d (%d ok, %d errors)", completed, total, ok, errs)
		},
	})
	if errors.Is(runErr, domain.ErrJobCancelled) {
		return nil, domain.ErrJobCancelled
	}

	succeeded, failed := 0, 0
	ids := make([]string, 0, len(runIDs))
	for i := range evaluatorIDs {
		if itemErrs[i] != nil {
			failed++
			continue
		}
		succeeded++
		if runIDs[i] != "" {
			ids = append(ids, runIDs[i])
		}
	}
	return map[string]any{
		"requested":  len(requested),
		"dispatched": len(evaluatorIDs),
		"succeeded":  succeeded,
		"errors":     failed,
		"run_ids":    ids,
	}, nil
}
