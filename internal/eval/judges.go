package eval

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/usecase"
)

// imageTag marks messages whose content arrived as a photo.
const imageTag = "[image]"

// IntentJudge classifies the routing of a single user message and checks it
// against the product's recorded classification.
type IntentJudge struct {
	llm     domain.LLMClient
	prompts *PromptSource
}

// NewIntentJudge wires the judge to a provider and prompt source.
func NewIntentJudge(llm domain.LLMClient, prompts *PromptSource) *IntentJudge {
	return &IntentJudge{llm: llm, prompts: prompts}
}

// IntentResult is the judgment for one message.
type IntentResult struct {
	ExpectedAgent      string `json:"expectedAgent"`
	QueryType          string `json:"queryType"`
	Reasoning          string `json:"reasoning"`
	IsCorrectIntent    bool   `json:"isCorrectIntent"`
	IsCorrectQueryType bool   `json:"isCorrectQueryType"`
}

var intentSchema = schemaObject(map[string]any{
	"expected_agent": schemaString("agent that should handle this message"),
	"query_type":     schemaString("kind of query"),
	"reasoning":      schemaString(""),
})

// EvaluateMessage judges one user message. Correctness compares the judge's
// classification against the values the product recorded at runtime.
func (j *IntentJudge) EvaluateMessage(ctx domain.Context, msg usecase.ChatMessage) (IntentResult, error) {
	prompt := fill(j.prompts.Get(ctx, PromptIntentJudge), map[string]string{
		"message": msg.Message,
	})
	obj, err := j.llm.GenerateJSON(ctx, prompt, intentSchema, domain.GenerateOpts{})
	if err != nil {
		return IntentResult{}, fmt.Errorf("op=judge.intent: %w", err)
	}
	res := IntentResult{
		ExpectedAgent: getString(obj, "expected_agent"),
		QueryType:     getString(obj, "query_type"),
		Reasoning:     getString(obj, "reasoning"),
	}
	res.IsCorrectIntent = sameLabel(res.ExpectedAgent, msg.Intent)
	res.IsCorrectQueryType = sameLabel(res.QueryType, msg.QueryType)
	return res, nil
}

func sameLabel(a, b string) bool {
	norm := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	}
	return norm(a) != "" && norm(a) == norm(b)
}

// CorrectnessJudge audits meal-summary responses with three numeric checks.
type CorrectnessJudge struct {
	llm     domain.LLMClient
	prompts *PromptSource
}

// NewCorrectnessJudge wires the judge to a provider and prompt source.
func NewCorrectnessJudge(llm domain.LLMClient, prompts *PromptSource) *CorrectnessJudge {
	return &CorrectnessJudge{llm: llm, prompts: prompts}
}

// CorrectnessCheck is one named check with its evidence.
type CorrectnessCheck struct {
	Passed   bool   `json:"passed"`
	Evidence string `json:"evidence"`
}

// CorrectnessResult is the judgment for one bot meal summary.
type CorrectnessResult struct {
	Verdict           string           `json:"verdict"`
	CalorieSanity     CorrectnessCheck `json:"calorieSanity"`
	MacroArithmetic   CorrectnessCheck `json:"macroArithmetic"`
	QuantityCoherence CorrectnessCheck `json:"quantityCoherence"`
	QuantitySuppress  bool             `json:"quantitySuppressed"`
	Regraded          bool             `json:"regraded"`
	Reasoning         string           `json:"reasoning"`
}

var checkSchema = schemaObject(map[string]any{
	"passed":   schemaBool(),
	"evidence": schemaString(""),
})

var correctnessSchema = schemaObject(map[string]any{
	"verdict":            schemaEnum(domain.VerdictPass, domain.VerdictSoftFail, domain.VerdictHardFail, domain.VerdictCritical, domain.VerdictNotApplicable),
	"calorie_sanity":     checkSchema,
	"macro_arithmetic":   checkSchema,
	"quantity_coherence": checkSchema,
	"reasoning":          schemaString(""),
})

// EvaluatePair judges a bot response against the user message that produced
// it. Image-tagged input suppresses the quantity-coherence check; a HARD
// FAIL or CRITICAL that rests only on quantities is re-graded to PASS.
func (j *CorrectnessJudge) EvaluatePair(ctx domain.Context, userMsg, botMsg usecase.ChatMessage, recentImage bool) (CorrectnessResult, error) {
	prompt := fill(j.prompts.Get(ctx, PromptCorrectnessJudge), map[string]string{
		"user_message": userMsg.Message,
		"bot_message":  botMsg.Message,
	})
	obj, err := j.llm.GenerateJSON(ctx, prompt, correctnessSchema, domain.GenerateOpts{})
	if err != nil {
		return CorrectnessResult{}, fmt.Errorf("op=judge.correctness: %w", err)
	}
	res := CorrectnessResult{
		Verdict:           getString(obj, "verdict"),
		CalorieSanity:     parseCheck(getMap(obj, "calorie_sanity")),
		MacroArithmetic:   parseCheck(getMap(obj, "macro_arithmetic")),
		QuantityCoherence: parseCheck(getMap(obj, "quantity_coherence")),
		Reasoning:         getString(obj, "reasoning"),
	}
	if domain.SeverityRank(res.Verdict) < 0 {
		res.Verdict = domain.VerdictNotApplicable
	}

	imageTagged := recentImage || userMsg.HasImage || strings.Contains(strings.ToLower(userMsg.Message), imageTag)
	if imageTagged {
		res.QuantitySuppress = true
		severe := res.Verdict == domain.VerdictHardFail || res.Verdict == domain.VerdictCritical
		if severe && res.CalorieSanity.Passed && res.MacroArithmetic.Passed {
			res.Verdict = domain.VerdictPass
			res.Regraded = true
		}
	}
	return res, nil
}

func parseCheck(m map[string]any) CorrectnessCheck {
	if m == nil {
		return CorrectnessCheck{}
	}
	return CorrectnessCheck{Passed: getBool(m, "passed"), Evidence: getString(m, "evidence")}
}

// EfficiencyJudge grades an entire thread's task flow.
type EfficiencyJudge struct {
	llm     domain.LLMClient
	prompts *PromptSource
}

// NewEfficiencyJudge wires the judge to a provider and prompt source.
func NewEfficiencyJudge(llm domain.LLMClient, prompts *PromptSource) *EfficiencyJudge {
	return &EfficiencyJudge{llm: llm, prompts: prompts}
}

// EfficiencyResult is the judgment for one whole thread.
type EfficiencyResult struct {
	Verdict          string `json:"verdict"`
	UserFrictionTurn int    `json:"userFrictionTurns"`
	BotFrictionTurns int    `json:"botFrictionTurns"`
	Reasoning        string `json:"reasoning"`
}

var efficiencySchema = schemaObject(map[string]any{
	"verdict":             schemaEnum(domain.EfficiencyEfficient, domain.EfficiencyAcceptable, domain.EfficiencyFriction, domain.EfficiencyBroken),
	"user_friction_turns": schemaNumber(),
	"bot_friction_turns":  schemaNumber(),
	"reasoning":           schemaString(""),
})

// EvaluateThread judges the full conversation.
func (j *EfficiencyJudge) EvaluateThread(ctx domain.Context, thread usecase.ConversationThread) (EfficiencyResult, error) {
	prompt := fill(j.prompts.Get(ctx, PromptEfficiencyJudge), map[string]string{
		"chat_transcript": formatThread(thread),
	})
	obj, err := j.llm.GenerateJSON(ctx, prompt, efficiencySchema, domain.GenerateOpts{})
	if err != nil {
		return EfficiencyResult{}, fmt.Errorf("op=judge.efficiency: %w", err)
	}
	res := EfficiencyResult{
		Verdict:   getString(obj, "verdict"),
		Reasoning: getString(obj, "reasoning"),
	}
	if f, ok := getFloat(obj, "user_friction_turns"); ok {
		res.UserFrictionTurn = int(f)
	}
	if f, ok := getFloat(obj, "bot_friction_turns"); ok {
		res.BotFrictionTurns = int(f)
	}
	return res, nil
}

// formatThread renders a CSV thread as "User:"/"Bot:" lines.
func formatThread(thread usecase.ConversationThread) string {
	var b strings.Builder
	for i, m := range thread.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		if m.IsUser() {
			b.WriteString("User: ")
		} else {
			b.WriteString("Bot: ")
		}
		b.WriteString(m.Message)
	}
	return b.String()
}
