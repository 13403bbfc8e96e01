package ai

import (
	"fmt"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// NewProvider picks the provider family from configuration. Google
// credentials win when both families are configured; the Google models carry
// the audio pipeline.
func NewProvider(cfg config.Config) (domain.LLMClient, error) {
	if cfg.GoogleAPIKey != "" || cfg.GoogleServiceAccountFile != "" {
		return NewGoogle(cfg)
	}
	if cfg.OpenAIAPIKey != "" {
		return NewOpenAI(cfg)
	}
	return nil, fmt.Errorf("op=ai.NewProvider: %w: no provider credentials configured", domain.ErrInvalidArgument)
}
