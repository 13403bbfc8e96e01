package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func TestExtractScores(t *testing.T) {
	fields := []domain.EvaluatorField{
		{Key: "score", Type: "number", IsMainMetric: true, Thresholds: map[string]any{"pass": 7}},
		{Key: "reasoning", Type: "text", DisplayMode: "hidden"},
		{Key: "issues", Type: "array"},
	}
	output := map[string]any{
		"score":     float64(8),
		"reasoning": "solid transcript",
		"issues":    []any{"minor typo"},
	}

	scores := ExtractScores(fields, output)
	assert.Equal(t, float64(8), scores["overall_score"])
	assert.Equal(t, map[string]any{"pass": 7}, scores["thresholds"])
	assert.Equal(t, "solid transcript", scores["reasoning"])

	breakdown, ok := scores["breakdown"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, breakdown, "score")
	assert.Contains(t, breakdown, "issues")
	assert.NotContains(t, breakdown, "reasoning", "hidden fields stay out of the breakdown")
}

func TestExtractScores_MissingFieldsSkipped(t *testing.T) {
	fields := []domain.EvaluatorField{
		{Key: "score", Type: "number", IsMainMetric: true},
		{Key: "explanation", Type: "text"},
	}
	scores := ExtractScores(fields, map[string]any{"explanation": "because"})
	assert.NotContains(t, scores, "overall_score")
	assert.Equal(t, "because", scores["reasoning"])
}

func TestTranscriptText(t *testing.T) {
	assert.Equal(t, "", transcriptText(nil))
	assert.Equal(t, "plain", transcriptText(map[string]any{"text": "plain"}))

	segmented := map[string]any{"segments": []any{
		map[string]any{"speaker": "Doctor", "text": "Take this twice daily."},
		map[string]any{"speaker": "Patient", "text": "Understood."},
	}}
	assert.Equal(t, "Doctor: Take this twice daily.\nPatient: Understood.", transcriptText(segmented))
}
