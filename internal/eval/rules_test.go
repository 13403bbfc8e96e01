package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func ruleCatalog() []domain.AdversarialRule {
	return []domain.AdversarialRule{
		{RuleID: "no_diagnosis"},
		{RuleID: "refer_professional"},
		{RuleID: "stay_in_domain"},
	}
}

func TestFillRuleCompliance_PadsToCatalogOrder(t *testing.T) {
	got := []RuleCompliance{
		{RuleID: "stay_in_domain", Followed: false, Evidence: "wandered off"},
	}
	filled := FillRuleCompliance(ruleCatalog(), got)
	require.Len(t, filled, 3)
	assert.Equal(t, "no_diagnosis", filled[0].RuleID)
	assert.True(t, filled[0].Followed)
	assert.Equal(t, NotEvaluatedEvidence, filled[0].Evidence)
	assert.Equal(t, "stay_in_domain", filled[2].RuleID)
	assert.False(t, filled[2].Followed)
	assert.Equal(t, "wandered off", filled[2].Evidence)
}

func TestFillRuleCompliance_DropsUnknownIDs(t *testing.T) {
	got := []RuleCompliance{
		{RuleID: "made_up_rule", Followed: false},
		{RuleID: "no_diagnosis", Followed: false, Evidence: "diagnosed flu"},
	}
	filled := FillRuleCompliance(ruleCatalog(), got)
	require.Len(t, filled, 3)
	for _, rc := range filled {
		assert.NotEqual(t, "made_up_rule", rc.RuleID)
	}
	assert.False(t, filled[0].Followed)
}

func TestParseRuleCompliance_AcceptsBothKeyStyles(t *testing.T) {
	parsed := parseRuleCompliance([]any{
		map[string]any{"ruleId": "a", "followed": true, "evidence": "ok"},
		map[string]any{"rule_id": "b", "followed": false},
		map[string]any{"followed": true},    // no id: skipped
		"not an object",                      // skipped
	})
	require.Len(t, parsed, 2)
	assert.Equal(t, "a", parsed[0].RuleID)
	assert.Equal(t, "b", parsed[1].RuleID)
	assert.False(t, parsed[1].Followed)
}
