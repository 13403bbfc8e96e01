// Package ai implements the LLM provider port over plain HTTP plus the
// audit wrapper that records one api_log row per call.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleClient calls the Gemini generateContent API with either an API key
// or a service-account token source.
type GoogleClient struct {
	cfg    config.Config
	model  string
	apiKey string
	tokens oauth2.TokenSource
	hc     *http.Client
}

// NewGoogle builds a client from config. A service-account file takes
// precedence over the API key when both are set.
func NewGoogle(cfg config.Config) (*GoogleClient, error) {
	c := &GoogleClient{
		cfg:   cfg,
		model: cfg.GoogleModel,
		hc:    &http.Client{Timeout: 120 * time.Second},
	}
	if cfg.GoogleServiceAccountFile != "" {
		data, err := os.ReadFile(cfg.GoogleServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("op=ai.google: read service account: %w", err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(data, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return nil, fmt.Errorf("op=ai.google: parse service account: %w", err)
		}
		c.tokens = jwtCfg.TokenSource(context.Background())
		return c, nil
	}
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("op=ai.google: %w: GOOGLE_API_KEY or service account file required", domain.ErrInvalidArgument)
	}
	c.apiKey = cfg.GoogleAPIKey
	return c, nil
}

// Provider identifies the provider family.
func (c *GoogleClient) Provider() string { return "google" }

// Model returns the configured model name.
func (c *GoogleClient) Model() string { return c.model }

type googlePart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *googleInlineData `json:"inline_data,omitempty"`
}

type googleInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleGenConfig struct {
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any  `json:"responseSchema,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type googleRequest struct {
	SystemInstruction *googleContent   `json:"system_instruction,omitempty"`
	Contents          []googleContent  `json:"contents"`
	GenerationConfig  *googleGenConfig `json:"generationConfig,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// thinkingBudget maps the textual hint onto Gemini's token budget knob.
func thinkingBudget(level string) *thinkingConfig {
	switch strings.ToLower(level) {
	case "none":
		return &thinkingConfig{ThinkingBudget: 0}
	case "low":
		return &thinkingConfig{ThinkingBudget: 1024}
	case "medium":
		return &thinkingConfig{ThinkingBudget: 8192}
	case "high":
		return &thinkingConfig{ThinkingBudget: 24576}
	default:
		return nil
	}
}

// Generate returns free-form text for a prompt.
func (c *GoogleClient) Generate(ctx domain.Context, prompt string, opts domain.GenerateOpts) (string, error) {
	req := c.buildRequest(prompt, nil, "", nil, opts)
	return c.call(ctx, req)
}

// GenerateJSON returns a parsed object, running the repair pipeline on the
// raw text before giving up.
func (c *GoogleClient) GenerateJSON(ctx domain.Context, prompt string, schema map[string]any, opts domain.GenerateOpts) (map[string]any, error) {
	req := c.buildRequest(prompt, nil, "", schema, opts)
	text, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.parseObject(text)
}

// GenerateWithAudio inlines the audio bytes as base64 next to the prompt.
func (c *GoogleClient) GenerateWithAudio(ctx domain.Context, prompt string, audio []byte, mimeType string, schema map[string]any, opts domain.GenerateOpts) (map[string]any, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("op=ai.google: %w: empty audio", domain.ErrInvalidArgument)
	}
	req := c.buildRequest(prompt, audio, mimeType, schema, opts)
	text, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.parseObject(text)
}

func (c *GoogleClient) parseObject(text string) (map[string]any, error) {
	obj, repaired, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("op=ai.google: %w", err)
	}
	if repaired {
		observability.LLMRepairedResponses.WithLabelValues(c.Provider()).Inc()
		slog.Warn("repaired truncated model response", slog.String("provider", c.Provider()), slog.String("model", c.model))
	}
	return obj, nil
}

func (c *GoogleClient) buildRequest(prompt string, audio []byte, mimeType string, schema map[string]any, opts domain.GenerateOpts) googleRequest {
	parts := []googlePart{{Text: prompt}}
	if len(audio) > 0 {
		parts = append(parts, googlePart{InlineData: &googleInlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(audio),
		}})
	}
	req := googleRequest{Contents: []googleContent{{Role: "user", Parts: parts}}}
	if opts.SystemPrompt != "" {
		req.SystemInstruction = &googleContent{Parts: []googlePart{{Text: opts.SystemPrompt}}}
	}
	gen := &googleGenConfig{ThinkingConfig: thinkingBudget(opts.ThinkingLevel)}
	if schema != nil {
		gen.ResponseMimeType = "application/json"
		gen.ResponseSchema = schema
	}
	if gen.ResponseMimeType != "" || gen.ThinkingConfig != nil {
		req.GenerationConfig = gen
	}
	return req
}

func (c *GoogleClient) call(ctx domain.Context, body googleRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=ai.google: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", googleBaseURL, c.model)

	expo := newBackoff(c.cfg)
	var text string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.tokens != nil {
			tok, err := c.tokens.Token()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("token: %w", err))
			}
			tok.SetAuthHeader(req)
		} else {
			req.Header.Set("x-goog-api-key", c.apiKey)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw, 300))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw, 300)))
		}
		var out googleResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no candidates", domain.ErrUpstream))
		}
		var b strings.Builder
		for _, p := range out.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
		text = b.String()
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return "", fmt.Errorf("op=ai.google: %w: %v", domain.ErrUpstream, err)
	}
	return text, nil
}

// newBackoff builds the retry policy from the environment-tuned settings.
func newBackoff(cfg config.Config) *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
