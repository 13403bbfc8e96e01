package eval

import (
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// NotEvaluatedEvidence fills rules the judge omitted so reports always carry
// full rule coverage.
const NotEvaluatedEvidence = "Not evaluated by judge"

// RuleCompliance is one per-rule judgment record.
type RuleCompliance struct {
	RuleID   string `json:"ruleId"`
	Followed bool   `json:"followed"`
	Evidence string `json:"evidence"`
}

// FillRuleCompliance pads the judge's output to one entry per catalog rule,
// in catalog order. Entries for unknown rule ids are dropped.
func FillRuleCompliance(catalog []domain.AdversarialRule, got []RuleCompliance) []RuleCompliance {
	byID := make(map[string]RuleCompliance, len(got))
	for _, rc := range got {
		if _, dup := byID[rc.RuleID]; !dup {
			byID[rc.RuleID] = rc
		}
	}
	out := make([]RuleCompliance, 0, len(catalog))
	for _, rule := range catalog {
		if rc, ok := byID[rule.RuleID]; ok {
			out = append(out, rc)
			continue
		}
		out = append(out, RuleCompliance{
			RuleID:   rule.RuleID,
			Followed: true,
			Evidence: NotEvaluatedEvidence,
		})
	}
	return out
}

// parseRuleCompliance decodes the judge's rule_compliance array from a
// parsed LLM object. Malformed entries are skipped.
func parseRuleCompliance(v any) []RuleCompliance {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]RuleCompliance, 0, len(arr))
	for _, raw := range arr {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rc := RuleCompliance{}
		if id, ok := m["ruleId"].(string); ok {
			rc.RuleID = id
		} else if id, ok := m["rule_id"].(string); ok {
			rc.RuleID = id
		}
		if rc.RuleID == "" {
			continue
		}
		if followed, ok := m["followed"].(bool); ok {
			rc.Followed = followed
		}
		if ev, ok := m["evidence"].(string); ok {
			rc.Evidence = ev
		}
		out = append(out, rc)
	}
	return out
}

// complianceMaps renders rule compliance for JSONB persistence.
func complianceMaps(rcs []RuleCompliance) []any {
	out := make([]any, 0, len(rcs))
	for _, rc := range rcs {
		out = append(out, map[string]any{
			"ruleId":   rc.RuleID,
			"followed": rc.Followed,
			"evidence": rc.Evidence,
		})
	}
	return out
}
