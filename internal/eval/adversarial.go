package eval

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/usecase"
)

// SettingKairaCredentials optionally overrides the configured chat endpoint
// per app/user.
const SettingKairaCredentials = "kaira_credentials"

// RunAdversarial handles evaluate-adversarial: generate test cases from the
// active config snapshot, drive one conversation per case, judge each
// transcript, persist per-case rows.
func (d Deps) RunAdversarial(ctx domain.Context, job domain.Job) (map[string]any, error) {
	params := job.Params
	appID := getString(params, "app_id")
	userID := getString(params, "user_id")
	testCount := intParam(params, "test_count", 5)
	if testCount < 1 {
		return nil, fmt.Errorf("%w: test_count must be >= 1", domain.ErrInvalidArgument)
	}
	maxTurns := intParam(params, "max_turns", 5)
	turnDelay := secondsParam(params, "turn_delay", 0)
	caseDelay := secondsParam(params, "case_delay", 0)

	chat := d.resolveChat(ctx, appID, userID)
	cfgSvc := usecase.NewAdversarialConfigService(d.Settings, appID, userID)
	advCfg, err := cfgSvc.Get(ctx)
	if err != nil {
		return nil, err
	}

	provider := d.NewAudited()
	snapshot, err := configSnapshot(advCfg)
	if err != nil {
		return nil, err
	}
	runID, err := d.Runs.Create(ctx, domain.EvalRun{
		AppID:    appID,
		EvalType: domain.EvalBatchAdversarial,
		JobID:    &job.ID,
		Status:   domain.RunPending,
		Provider: provider.Provider(),
		Model:    provider.Model(),
		Config: map[string]any{
			"testCount": testCount,
			"maxTurns":  maxTurns,
		},
		BatchMetadata: map[string]any{"adversarialConfig": snapshot},
	})
	if err != nil {
		return nil, err
	}
	if err := d.Runs.MarkRunning(ctx, runID); err != nil {
		return nil, err
	}

	wrapper := d.NewAudited()
	wrapper.SetRunID(runID)
	prompts := d.promptSource(appID, userID)
	judge := NewAdversarialJudge(wrapper, prompts, advCfg)

	cases, err := judge.GenerateTestCases(ctx, testCount)
	if err != nil {
		d.finalizeFailed(ctx, runID, err)
		return nil, err
	}

	worker := func(wctx domain.Context, _ int, tc TestCase) (domain.AdversarialEvaluation, error) {
		agent := NewConversationAgent(chat, wrapper, prompts, d.Probe, job.ID, maxTurns, turnDelay)
		conv, err := agent.Run(wctx, tc)
		if err != nil {
			return domain.AdversarialEvaluation{}, err
		}
		judgment, err := judge.JudgeTranscript(wctx, tc, conv.Transcript())
		if err != nil {
			return domain.AdversarialEvaluation{}, err
		}
		ae := domain.AdversarialEvaluation{
			RunID:        runID,
			Category:     tc.Category,
			Difficulty:   tc.Difficulty,
			Verdict:      judgment.Verdict,
			GoalAchieved: conv.GoalAchieved || judgment.GoalAchieved,
			TotalTurns:   conv.TotalTurns,
			Result: map[string]any{
				"goal":              tc.Goal,
				"openingMessage":    tc.OpeningMessage,
				"turns":             conv.Turns,
				"abandonmentReason": conv.AbandonmentReason,
				"ruleCompliance":    complianceMaps(judgment.RuleCompliance),
				"reasoning":         judgment.Reasoning,
			},
		}
		if _, err := d.AdvEvals.Create(wctx, ae); err != nil {
			return domain.AdversarialEvaluation{}, err
		}
		return ae, nil
	}

	// Conversations run one at a time so the chat service sees a single
	// simulated user; case_delay staggers cases.
	outcomes, itemErrs, runErr := RunParallel(ctx, cases, worker, ParallelOpts{
		Concurrency:    1,
		JobID:          job.ID,
		InterItemDelay: caseDelay,
		Probe:          d.Probe,
		OnProgress:     d.progressFn(ctx, job.ID, runID),
		MessageFn: func(ok, errs, completed, total int) string {
			return fmt.Sprintf("Case %d/%d (%d ok, %d errors)", completed, total, ok, errs)
		},
	})
	if errors.Is(runErr, domain.ErrJobCancelled) {
		if err := d.Runs.Finalize(ctx, runID, domain.RunCancelled, "", nil, nil); err != nil {
			slog.Error("finalize cancelled run failed", slog.Any("error", err), slog.String("run_id", runID))
		}
		return nil, domain.ErrJobCancelled
	}

	summary := summarizeAdversarial(cases, outcomes, itemErrs)
	if err := d.Runs.Finalize(ctx, runID, domain.RunCompleted, "", nil, summary); err != nil {
		return nil, err
	}
	return map[string]any{"run_id": runID, "summary": summary}, nil
}

// resolveChat prefers credentials saved in settings over the configured
// endpoint.
func (d Deps) resolveChat(ctx domain.Context, appID, userID string) domain.ChatAPI {
	if d.NewChat == nil {
		return d.Chat
	}
	setting, err := d.Settings.Get(ctx, appID, SettingKairaCredentials, userID)
	if err != nil {
		return d.Chat
	}
	url := getString(setting.Value, "url")
	if url == "" {
		return d.Chat
	}
	return d.NewChat(url, getString(setting.Value, "apiKey"))
}

func (d Deps) finalizeFailed(ctx domain.Context, runID string, cause error) {
	if err := d.Runs.Finalize(ctx, runID, domain.RunFailed, cause.Error(), nil, nil); err != nil {
		slog.Error("finalize failed run failed", slog.Any("error", err), slog.String("run_id", runID))
	}
}

func summarizeAdversarial(cases []TestCase, outcomes []domain.AdversarialEvaluation, itemErrs []error) map[string]any {
	verdictDist := map[string]int{}
	categoryDist := map[string]int{}
	completed, errCount, goalAchieved := 0, 0, 0
	for i := range cases {
		if itemErrs[i] != nil {
			errCount++
			continue
		}
		completed++
		ae := outcomes[i]
		if ae.Verdict != "" {
			verdictDist[ae.Verdict]++
		}
		categoryDist[ae.Category]++
		if ae.GoalAchieved {
			goalAchieved++
		}
	}
	return map[string]any{
		"total_cases":           len(cases),
		"completed":             completed,
		"errors":                errCount,
		"goals_achieved":        goalAchieved,
		"verdict_distribution":  verdictDist,
		"category_distribution": categoryDist,
	}
}

func configSnapshot(cfg domain.AdversarialConfig) (map[string]any, error) {
	snapshot, err := toMap(cfg)
	if err != nil {
		return nil, fmt.Errorf("op=adversarial.snapshot: %w", err)
	}
	return snapshot, nil
}
