package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareRx_MedicationAlignment(t *testing.T) {
	apiRx := map[string]any{
		"medications": []any{
			map[string]any{"name": "Amoxicillin", "dose": "500mg", "frequency": "BID"},
			map[string]any{"name": "Ibuprofen", "dose": "200mg"},
		},
	}
	judgeRx := map[string]any{
		"medications": []any{
			// different casing and spacing still aligns by normalized name
			map[string]any{"name": "amoxicillin ", "dose": "500mg", "frequency": "TID"},
			map[string]any{"name": "Paracetamol", "dose": "650mg"},
		},
	}

	entries := CompareRx(apiRx, judgeRx)

	byPath := map[string]ComparisonEntry{}
	for _, e := range entries {
		byPath[e.FieldPath] = e
	}

	// matched item expands into per-subfield rows at the API index; the
	// key subfield the pair aligned on is a match even when casing differs
	name, ok := byPath["rx.medications[0].name"]
	require.True(t, ok)
	assert.Equal(t, HintMatch, name.MatchHint)
	assert.Equal(t, "Amoxicillin", name.APIValue)
	assert.Equal(t, "amoxicillin", name.JudgeValue)

	dose, ok := byPath["rx.medications[0].dose"]
	require.True(t, ok)
	assert.Equal(t, HintMatch, dose.MatchHint)
	assert.Equal(t, "Amoxicillin", dose.ItemName)

	freq, ok := byPath["rx.medications[0].frequency"]
	require.True(t, ok)
	assert.Equal(t, HintMismatch, freq.MatchHint)
	assert.Equal(t, "BID", freq.APIValue)
	assert.Equal(t, "TID", freq.JudgeValue)

	// API item the judge missed
	apiOnly, ok := byPath["rx.medications[1]"]
	require.True(t, ok)
	assert.Equal(t, HintAPIOnly, apiOnly.MatchHint)
	assert.Equal(t, "(not found)", apiOnly.JudgeValue)

	// judge item absent from the API output trails, keyed by name
	judgeOnly, ok := byPath["rx.medications[Paracetamol]"]
	require.True(t, ok)
	assert.Equal(t, HintJudgeOnly, judgeOnly.MatchHint)
	assert.Equal(t, "(not found)", judgeOnly.APIValue)
}

func TestCompareRx_InvariantNotFoundSides(t *testing.T) {
	apiRx := map[string]any{
		"symptoms": []any{map[string]any{"name": "fever"}},
	}
	judgeRx := map[string]any{
		"symptoms": []any{map[string]any{"name": "cough"}},
	}
	for _, e := range CompareRx(apiRx, judgeRx) {
		switch e.MatchHint {
		case HintAPIOnly:
			assert.Equal(t, "(not found)", e.JudgeValue)
		case HintJudgeOnly:
			assert.Equal(t, "(not found)", e.APIValue)
		}
	}
}

func TestCompareRx_ObjectAndScalarFields(t *testing.T) {
	apiRx := map[string]any{
		"vitalsAndBodyComposition": map[string]any{"weight": "70kg", "bp": "120/80"},
		"followUp":                 "2 weeks",
		"advice":                   []any{"rest", "hydrate"},
	}
	judgeRx := map[string]any{
		"vitalsAndBodyComposition": map[string]any{"weight": "70kg", "pulse": "72"},
		"followUp":                 "2 weeks",
		"advice":                   []any{"rest"},
	}

	entries := CompareRx(apiRx, judgeRx)
	byPath := map[string]ComparisonEntry{}
	for _, e := range entries {
		byPath[e.FieldPath] = e
	}

	assert.Equal(t, HintMatch, byPath["rx.vitalsAndBodyComposition.weight"].MatchHint)
	// judge-only object keys trail the sorted API keys
	pulse := byPath["rx.vitalsAndBodyComposition.pulse"]
	assert.Equal(t, "(empty)", pulse.APIValue)
	assert.Equal(t, HintMatch, byPath["rx.followUp"].MatchHint)
	assert.Equal(t, HintMismatch, byPath["rx.advice[1]"].MatchHint)
	assert.Equal(t, "(empty)", byPath["rx.advice[1]"].JudgeValue)
}

func TestCompareRx_Empty(t *testing.T) {
	assert.Empty(t, CompareRx(map[string]any{}, map[string]any{}))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "(empty)", Stringify(nil))
	assert.Equal(t, "(empty)", Stringify("   "))
	assert.Equal(t, "text", Stringify(" text "))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
	assert.Equal(t, "3.5", Stringify(3.5))
}

func TestFormatComparisonTable(t *testing.T) {
	table := FormatComparisonTable([]ComparisonEntry{
		{FieldPath: "rx.followUp", APIValue: "2 weeks", JudgeValue: "1 week", MatchHint: HintMismatch},
	})
	assert.Equal(t, "rx.followUp | api=2 weeks | judge=1 week | mismatch\n", table)
	assert.True(t, strings.HasSuffix(table, "\n"))
}
