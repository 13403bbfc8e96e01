package domain

import (
	"fmt"
	"regexp"
)

// SettingAdversarialConfig is the settings key holding the active config.
const SettingAdversarialConfig = "adversarial_config"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// AdversarialCategory is one stress-test category of the rubric.
type AdversarialCategory struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
	Weight      int    `json:"weight" yaml:"weight"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

// AdversarialRule is one rubric rule, mapped to the categories it applies to.
type AdversarialRule struct {
	RuleID     string   `json:"ruleId" yaml:"rule_id"`
	Section    string   `json:"section" yaml:"section"`
	RuleText   string   `json:"ruleText" yaml:"rule_text"`
	Categories []string `json:"categories" yaml:"categories"`
}

// AdversarialConfig is the single settings document driving adversarial runs.
// It is loaded once per run and snapshotted into the run's batch_metadata so
// mid-run edits cannot change judging behavior.
type AdversarialConfig struct {
	Categories []AdversarialCategory `json:"categories" yaml:"categories"`
	Rules      []AdversarialRule     `json:"rules" yaml:"rules"`
}

// Validate checks the config invariants: unique well-formed ids, every rule
// category referencing an existing category, and at least one enabled
// category. Error messages are deterministic.
func (c AdversarialConfig) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: at least one category required", ErrInvalidArgument)
	}
	catIDs := make(map[string]bool, len(c.Categories))
	enabled := 0
	for i, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("%w: categories[%d]: id required", ErrInvalidArgument, i)
		}
		if !idPattern.MatchString(cat.ID) {
			return fmt.Errorf("%w: categories[%d]: invalid id %q", ErrInvalidArgument, i, cat.ID)
		}
		if catIDs[cat.ID] {
			return fmt.Errorf("%w: categories[%d]: duplicate id %q", ErrInvalidArgument, i, cat.ID)
		}
		catIDs[cat.ID] = true
		if cat.Weight < 1 {
			return fmt.Errorf("%w: categories[%d]: weight must be >= 1", ErrInvalidArgument, i)
		}
		if cat.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w: at least one enabled category required", ErrInvalidArgument)
	}
	ruleIDs := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.RuleID == "" {
			return fmt.Errorf("%w: rules[%d]: ruleId required", ErrInvalidArgument, i)
		}
		if !idPattern.MatchString(r.RuleID) {
			return fmt.Errorf("%w: rules[%d]: invalid ruleId %q", ErrInvalidArgument, i, r.RuleID)
		}
		if ruleIDs[r.RuleID] {
			return fmt.Errorf("%w: rules[%d]: duplicate ruleId %q", ErrInvalidArgument, i, r.RuleID)
		}
		ruleIDs[r.RuleID] = true
		for _, cid := range r.Categories {
			if !catIDs[cid] {
				return fmt.Errorf("%w: rules[%d]: unknown category %q", ErrInvalidArgument, i, cid)
			}
		}
	}
	return nil
}

// EnabledCategories returns the enabled categories in declaration order.
func (c AdversarialConfig) EnabledCategories() []AdversarialCategory {
	out := make([]AdversarialCategory, 0, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Enabled {
			out = append(out, cat)
		}
	}
	return out
}

// RulesForCategory returns the rule subset mapped to the category, in
// declaration order.
func (c AdversarialConfig) RulesForCategory(categoryID string) []AdversarialRule {
	var out []AdversarialRule
	for _, r := range c.Rules {
		for _, cid := range r.Categories {
			if cid == categoryID {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Category returns the category with the given id.
func (c AdversarialConfig) Category(id string) (AdversarialCategory, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return AdversarialCategory{}, false
}
