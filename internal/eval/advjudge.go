package eval

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// TestCase is one generated adversarial scenario.
type TestCase struct {
	Category       string `json:"category"`
	Difficulty     string `json:"difficulty"`
	Goal           string `json:"goal"`
	OpeningMessage string `json:"openingMessage"`
}

// AdversarialJudgment is the score for one finished conversation.
type AdversarialJudgment struct {
	Verdict        string           `json:"verdict"`
	GoalAchieved   bool             `json:"goalAchieved"`
	RuleCompliance []RuleCompliance `json:"ruleCompliance"`
	Reasoning      string           `json:"reasoning"`
}

// AdversarialJudge generates test cases and scores transcripts against one
// config snapshot. The snapshot is fixed at construction so mid-run edits to
// the saved config cannot change judging behavior.
type AdversarialJudge struct {
	llm     domain.LLMClient
	prompts *PromptSource
	cfg     domain.AdversarialConfig
}

// NewAdversarialJudge binds the judge to a config snapshot.
func NewAdversarialJudge(llm domain.LLMClient, prompts *PromptSource, cfg domain.AdversarialConfig) *AdversarialJudge {
	return &AdversarialJudge{llm: llm, prompts: prompts, cfg: cfg}
}

// GenerateTestCases asks the model for count scenarios. The enabled category
// id set is baked into the generation schema as an enum so the model cannot
// invent categories.
func (j *AdversarialJudge) GenerateTestCases(ctx domain.Context, count int) ([]TestCase, error) {
	enabled := j.cfg.EnabledCategories()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("%w: no enabled categories", domain.ErrInvalidArgument)
	}
	ids := make([]string, len(enabled))
	var catLines strings.Builder
	for i, cat := range enabled {
		ids[i] = cat.ID
		fmt.Fprintf(&catLines, "- %s (weight %d): %s\n", cat.ID, cat.Weight, cat.Description)
	}

	schema := schemaObject(map[string]any{
		"test_cases": schemaArray(schemaObject(map[string]any{
			"category":        schemaEnum(ids...),
			"difficulty":      schemaEnum(domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard),
			"goal":            schemaString("what the attacker wants to achieve"),
			"opening_message": schemaString("first message the simulated user sends"),
		})),
	})
	prompt := fill(j.prompts.Get(ctx, PromptAdversarialGeneration), map[string]string{
		"categories": catLines.String(),
		"test_count": fmt.Sprintf("%d", count),
	})
	obj, err := j.llm.GenerateJSON(ctx, prompt, schema, domain.GenerateOpts{ThinkingLevel: "low"})
	if err != nil {
		return nil, fmt.Errorf("op=judge.adversarial.generate: %w", err)
	}

	raw, _ := obj["test_cases"].([]any)
	valid := map[string]bool{}
	for _, id := range ids {
		valid[id] = true
	}
	cases := make([]TestCase, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tc := TestCase{
			Category:       getString(m, "category"),
			Difficulty:     getString(m, "difficulty"),
			Goal:           getString(m, "goal"),
			OpeningMessage: getString(m, "opening_message"),
		}
		if !valid[tc.Category] || tc.OpeningMessage == "" {
			continue
		}
		cases = append(cases, tc)
		if len(cases) == count {
			break
		}
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("op=judge.adversarial.generate: %w: no usable test cases", domain.ErrUpstream)
	}
	return cases, nil
}

// JudgeTranscript scores one finished conversation against the rules mapped
// to the case's category. Rules the model omits are padded to full coverage.
func (j *AdversarialJudge) JudgeTranscript(ctx domain.Context, tc TestCase, transcript string) (AdversarialJudgment, error) {
	rules := j.cfg.RulesForCategory(tc.Category)
	var ruleLines strings.Builder
	for _, r := range rules {
		fmt.Fprintf(&ruleLines, "- %s [%s]: %s\n", r.RuleID, r.Section, r.RuleText)
	}

	schema := schemaObject(map[string]any{
		"verdict":       schemaEnum(domain.VerdictPass, domain.VerdictSoftFail, domain.VerdictHardFail, domain.VerdictCritical),
		"goal_achieved": schemaBool(),
		"rule_compliance": schemaArray(schemaObject(map[string]any{
			"rule_id":  schemaString(""),
			"followed": schemaBool(),
			"evidence": schemaString(""),
		})),
		"reasoning": schemaString(""),
	})
	prompt := fill(j.prompts.Get(ctx, PromptAdversarialJudgment), map[string]string{
		"category":   tc.Category,
		"goal":       tc.Goal,
		"rules":      ruleLines.String(),
		"transcript": transcript,
	})
	obj, err := j.llm.GenerateJSON(ctx, prompt, schema, domain.GenerateOpts{})
	if err != nil {
		return AdversarialJudgment{}, fmt.Errorf("op=judge.adversarial.judge: %w", err)
	}

	judgment := AdversarialJudgment{
		Verdict:        getString(obj, "verdict"),
		GoalAchieved:   getBool(obj, "goal_achieved"),
		RuleCompliance: FillRuleCompliance(rules, parseRuleCompliance(obj["rule_compliance"])),
		Reasoning:      getString(obj, "reasoning"),
	}
	if domain.SeverityRank(judgment.Verdict) < 0 {
		judgment.Verdict = domain.VerdictSoftFail
	}
	return judgment, nil
}
