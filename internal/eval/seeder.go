package eval

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// DefaultAppID scopes seeded defaults; per-user copies shadow them.
const DefaultAppID = "default"

// DefaultUserID marks rows owned by the system rather than a user.
const DefaultUserID = "system"

// Seeder installs the default prompts, schemas, and evaluators. Every write
// is an upsert that compares content first, so reseeding a current store is
// a no-op.
type Seeder struct {
	Prompts    domain.PromptRepository
	Schemas    domain.SchemaRepository
	Evaluators domain.EvaluatorRepository
}

// SeedReport counts what the pass changed.
type SeedReport struct {
	PromptsWritten    int
	SchemasWritten    int
	EvaluatorsWritten int
}

// Run seeds everything and reports the write counts.
func (s *Seeder) Run(ctx domain.Context) (SeedReport, error) {
	var report SeedReport

	promptTypes := make([]string, 0, len(defaultPrompts))
	for pt := range defaultPrompts {
		promptTypes = append(promptTypes, pt)
	}
	sort.Strings(promptTypes)
	for _, pt := range promptTypes {
		changed, err := s.Prompts.Upsert(ctx, domain.Prompt{
			AppID:      DefaultAppID,
			PromptType: pt,
			Version:    1,
			UserID:     DefaultUserID,
			Name:       seedName(pt),
			Content:    defaultPrompts[pt],
		})
		if err != nil {
			return report, fmt.Errorf("op=seed.prompt %s: %w", pt, err)
		}
		if changed {
			report.PromptsWritten++
		}
	}

	schemaTypes := make([]string, 0, len(defaultSchemas))
	for st := range defaultSchemas {
		schemaTypes = append(schemaTypes, st)
	}
	sort.Strings(schemaTypes)
	for _, st := range schemaTypes {
		changed, err := s.Schemas.Upsert(ctx, domain.SchemaDef{
			AppID:      DefaultAppID,
			SchemaType: st,
			Version:    1,
			UserID:     DefaultUserID,
			Name:       seedName(st),
			Content:    defaultSchemas[st],
		})
		if err != nil {
			return report, fmt.Errorf("op=seed.schema %s: %w", st, err)
		}
		if changed {
			report.SchemasWritten++
		}
	}

	for _, ev := range defaultEvaluators() {
		changed, err := s.Evaluators.Upsert(ctx, ev)
		if err != nil {
			return report, fmt.Errorf("op=seed.evaluator %s: %w", ev.Name, err)
		}
		if changed {
			report.EvaluatorsWritten++
		}
	}

	slog.Info("seeding complete",
		slog.Int("prompts_written", report.PromptsWritten),
		slog.Int("schemas_written", report.SchemasWritten),
		slog.Int("evaluators_written", report.EvaluatorsWritten))
	return report, nil
}

func seedName(typeName string) string {
	return strings.ReplaceAll(typeName, "_", " ")
}

// defaultEvaluators are ready-made custom evaluators users can run without
// building their own field lists first.
func defaultEvaluators() []domain.Evaluator {
	return []domain.Evaluator{
		{
			AppID:       DefaultAppID,
			UserID:      DefaultUserID,
			Name:        "Transcript quality",
			Description: "Scores overall transcript fidelity against the recorded audio.",
			Prompt: `Evaluate the quality of this transcription.

Transcript:
{{transcript}}

Reference transcript:
{{llm_transcript}}

Score fidelity from 0 to 10, flag fabricated content, and explain your reasoning.`,
			Fields: []domain.EvaluatorField{
				{Key: "score", Type: "number", Description: "fidelity 0-10", IsMainMetric: true, Thresholds: map[string]any{"pass": 7, "warn": 5}},
				{Key: "fabricated_content", Type: "boolean", Description: "content not present in the audio"},
				{Key: "reasoning", Type: "text", DisplayMode: "hidden"},
			},
		},
		{
			AppID:       DefaultAppID,
			UserID:      DefaultUserID,
			Name:        "Conversation helpfulness",
			Description: "Scores how helpful the assistant was across a chat session.",
			Prompt: `Review this conversation and score the assistant's helpfulness.

{{chat_transcript}}

Score helpfulness from 0 to 10, list missed opportunities, and explain briefly.`,
			Fields: []domain.EvaluatorField{
				{Key: "score", Type: "number", Description: "helpfulness 0-10", IsMainMetric: true, Thresholds: map[string]any{"pass": 7, "warn": 5}},
				{Key: "missed_opportunities", Type: "array", ArrayItemSchema: map[string]any{"type": "string"}},
				{Key: "explanation", Type: "text"},
			},
		},
	}
}
