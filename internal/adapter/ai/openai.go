package ai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint and uses
// json_schema response formatting for structured output.
type OpenAIClient struct {
	cfg     config.Config
	model   string
	apiKey  string
	baseURL string
	hc      *http.Client
}

// NewOpenAI builds a client from config.
func NewOpenAI(cfg config.Config) (*OpenAIClient, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("op=ai.openai: %w: OPENAI_API_KEY required", domain.ErrInvalidArgument)
	}
	base := strings.TrimSuffix(cfg.OpenAIBaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		cfg:     cfg,
		model:   cfg.OpenAIModel,
		apiKey:  cfg.OpenAIAPIKey,
		baseURL: base,
		hc:      &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Provider identifies the provider family.
func (c *OpenAIClient) Provider() string { return "openai" }

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

type oaContentPart struct {
	Type       string        `json:"type"`
	Text       string        `json:"text,omitempty"`
	InputAudio *oaInputAudio `json:"input_audio,omitempty"`
}

type oaInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type oaMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaRequest struct {
	Model          string      `json:"model"`
	Messages       []oaMessage `json:"messages"`
	ResponseFormat any         `json:"response_format,omitempty"`
	Modalities     []string    `json:"modalities,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate returns free-form text for a prompt.
func (c *OpenAIClient) Generate(ctx domain.Context, prompt string, opts domain.GenerateOpts) (string, error) {
	req := c.buildRequest(prompt, nil, "", nil, opts)
	return c.call(ctx, req)
}

// GenerateJSON returns a parsed object enforced by a strict json_schema
// response format.
func (c *OpenAIClient) GenerateJSON(ctx domain.Context, prompt string, schema map[string]any, opts domain.GenerateOpts) (map[string]any, error) {
	req := c.buildRequest(prompt, nil, "", schema, opts)
	text, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.parseObject(text)
}

// GenerateWithAudio sends the audio bytes as an input_audio content part.
func (c *OpenAIClient) GenerateWithAudio(ctx domain.Context, prompt string, audio []byte, mimeType string, schema map[string]any, opts domain.GenerateOpts) (map[string]any, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("op=ai.openai: %w: empty audio", domain.ErrInvalidArgument)
	}
	req := c.buildRequest(prompt, audio, mimeType, schema, opts)
	text, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.parseObject(text)
}

func (c *OpenAIClient) parseObject(text string) (map[string]any, error) {
	obj, repaired, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("op=ai.openai: %w", err)
	}
	if repaired {
		observability.LLMRepairedResponses.WithLabelValues(c.Provider()).Inc()
		slog.Warn("repaired truncated model response", slog.String("provider", c.Provider()), slog.String("model", c.model))
	}
	return obj, nil
}

// audioFormat maps a MIME type onto the wire format label.
func audioFormat(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	default:
		return "mp3"
	}
}

func (c *OpenAIClient) buildRequest(prompt string, audio []byte, mimeType string, schema map[string]any, opts domain.GenerateOpts) oaRequest {
	var msgs []oaMessage
	if opts.SystemPrompt != "" {
		msgs = append(msgs, oaMessage{Role: "system", Content: opts.SystemPrompt})
	}
	if len(audio) > 0 {
		msgs = append(msgs, oaMessage{Role: "user", Content: []oaContentPart{
			{Type: "text", Text: prompt},
			{Type: "input_audio", InputAudio: &oaInputAudio{
				Data:   base64.StdEncoding.EncodeToString(audio),
				Format: audioFormat(mimeType),
			}},
		}})
	} else {
		msgs = append(msgs, oaMessage{Role: "user", Content: prompt})
	}
	req := oaRequest{Model: c.model, Messages: msgs}
	if len(audio) > 0 {
		req.Modalities = []string{"text"}
	}
	if schema != nil {
		req.ResponseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "structured_output",
				"strict": true,
				"schema": schema,
			},
		}
	}
	return req
}

func (c *OpenAIClient) call(ctx domain.Context, body oaRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=ai.openai: %w", err)
	}
	url := c.baseURL + "/chat/completions"

	expo := newBackoff(c.cfg)
	var text string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		var out oaResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		if len(out.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no choices", domain.ErrUpstream))
		}
		text = out.Choices[0].Message.Content
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return "", fmt.Errorf("op=ai.openai: %w: %v", domain.ErrUpstream, err)
	}
	return text, nil
}
