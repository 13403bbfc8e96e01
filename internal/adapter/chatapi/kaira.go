// Package chatapi implements the external chat-service port over SSE.
package chatapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/config"
	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// Client posts one conversation turn and collects the server-sent event
// frames until the stream closes.
type Client struct {
	url    string
	apiKey string
	hc     *http.Client
}

// New builds a client from config.
func New(cfg config.Config) *Client {
	timeout := cfg.ChatHTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:    cfg.KairaAPIURL,
		apiKey: cfg.KairaAPIKey,
		hc:     &http.Client{Timeout: timeout},
	}
}

// NewWithCredentials builds a client for credentials resolved at runtime,
// such as a per-tenant endpoint saved in settings.
func NewWithCredentials(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:    url,
		apiKey: apiKey,
		hc:     &http.Client{Timeout: timeout},
	}
}

// Send posts the payload and returns every decoded frame in arrival order.
// Frames that are not JSON objects are skipped with a warning.
func (c *Client) Send(ctx domain.Context, p domain.KairaPayload) ([]domain.KairaChunk, error) {
	if c.url == "" {
		return nil, fmt.Errorf("op=chatapi.send: %w: KAIRA_API_URL not configured", domain.ErrInvalidArgument)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("op=chatapi.send: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("op=chatapi.send: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=chatapi.send: %w: %v", domain.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("op=chatapi.send: %w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var chunks []domain.KairaChunk
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk domain.KairaChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Warn("skipping undecodable stream frame", slog.String("frame", data))
			continue
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("op=chatapi.send: %w: %v", domain.ErrUpstream, err)
	}
	return chunks, nil
}
