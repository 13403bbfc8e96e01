package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() AdversarialConfig {
	return AdversarialConfig{
		Categories: []AdversarialCategory{
			{ID: "medical_advice", Label: "Medical advice", Weight: 3, Enabled: true},
			{ID: "off_topic", Label: "Off topic", Weight: 1, Enabled: false},
		},
		Rules: []AdversarialRule{
			{RuleID: "no_diagnosis", Section: "safety", RuleText: "Never diagnose.", Categories: []string{"medical_advice"}},
		},
	}
}

func TestAdversarialConfig_ValidateOK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestAdversarialConfig_ValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AdversarialConfig)
		want   string
	}{
		{"no categories", func(c *AdversarialConfig) { c.Categories = nil }, "at least one category required"},
		{"empty id", func(c *AdversarialConfig) { c.Categories[0].ID = "" }, "categories[0]: id required"},
		{"bad id", func(c *AdversarialConfig) { c.Categories[0].ID = "bad id!" }, `categories[0]: invalid id "bad id!"`},
		{"duplicate id", func(c *AdversarialConfig) { c.Categories[1].ID = "medical_advice" }, `categories[1]: duplicate id "medical_advice"`},
		{"zero weight", func(c *AdversarialConfig) { c.Categories[0].Weight = 0 }, "categories[0]: weight must be >= 1"},
		{"none enabled", func(c *AdversarialConfig) { c.Categories[0].Enabled = false }, "at least one enabled category required"},
		{"unknown rule category", func(c *AdversarialConfig) { c.Rules[0].Categories = []string{"ghost"} }, `rules[0]: unknown category "ghost"`},
		{"empty ruleId", func(c *AdversarialConfig) { c.Rules[0].RuleID = "" }, "rules[0]: ruleId required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAdversarialConfig_ValidateDeterministic(t *testing.T) {
	cfg := validConfig()
	cfg.Categories[1].ID = "medical_advice"
	first := cfg.Validate()
	second := cfg.Validate()
	require.Error(t, first)
	assert.Equal(t, first.Error(), second.Error())
}

func TestAdversarialConfig_YAMLRoundTrip(t *testing.T) {
	cfg := validConfig()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	var back AdversarialConfig
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
}

func TestAdversarialConfig_Selectors(t *testing.T) {
	cfg := validConfig()
	enabled := cfg.EnabledCategories()
	require.Len(t, enabled, 1)
	assert.Equal(t, "medical_advice", enabled[0].ID)

	rules := cfg.RulesForCategory("medical_advice")
	require.Len(t, rules, 1)
	assert.Equal(t, "no_diagnosis", rules[0].RuleID)
	assert.Empty(t, cfg.RulesForCategory("off_topic"))

	_, ok := cfg.Category("off_topic")
	assert.True(t, ok)
	_, ok = cfg.Category("ghost")
	assert.False(t, ok)
}
