package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func TestExtractJSON_Direct(t *testing.T) {
	out, repaired, err := ExtractJSON(`{"verdict":"PASS","score":7}`)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "PASS", out["verdict"])
	assert.EqualValues(t, 7, out["score"])
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	out, repaired, err := ExtractJSON("Here is the result:\n```json\n{\"ok\": true}\n```\nDone.")
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, true, out["ok"])
}

func TestExtractJSON_NestedBracesInStrings(t *testing.T) {
	out, _, err := ExtractJSON(`noise {"text": "uses { and } inside", "n": {"a": 1}} trailing`)
	require.NoError(t, err)
	assert.Equal(t, "uses { and } inside", out["text"])
}

func TestExtractJSON_TruncatedObject(t *testing.T) {
	out, repaired, err := ExtractJSON(`{"items": [{"name": "Amoxicillin", "dose": "500mg"`)
	require.NoError(t, err)
	assert.True(t, repaired)
	items, ok := out["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestExtractJSON_TruncatedMidString(t *testing.T) {
	out, repaired, err := ExtractJSON(`{"summary": "the patient was adv`)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "the patient was adv", out["summary"])
}

func TestExtractJSON_DanglingEscape(t *testing.T) {
	out, repaired, err := ExtractJSON(`{"summary": "line one\`)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "line one", out["summary"])
}

func TestExtractJSON_Idempotent(t *testing.T) {
	inputs := []string{
		`{"a": 1}`,
		`prefix {"a": [1, 2`,
		`{"s": "open string`,
	}
	for _, in := range inputs {
		first, _, err := ExtractJSON(in)
		require.NoError(t, err, in)
		again, _, err := ExtractJSON(in)
		require.NoError(t, err, in)
		assert.Equal(t, first, again, in)
	}
}

func TestExtractJSON_Unparseable(t *testing.T) {
	long := "no json here " + strings.Repeat("x", 600)
	_, _, err := ExtractJSON(long)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
	assert.LessOrEqual(t, len(err.Error()), 560, "error carries at most a 500-char snippet")
}

func TestExtractJSON_MismatchedClose(t *testing.T) {
	_, _, err := ExtractJSON(`{"a": [1}`)
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestExtractJSON_Empty(t *testing.T) {
	_, _, err := ExtractJSON("   ")
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}
