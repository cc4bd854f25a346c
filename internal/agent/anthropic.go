package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"evoforge/internal/config"
	"evoforge/internal/logging"
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	name        string
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClient creates a client for one configured backend.
func NewAnthropicClient(name string, cfg config.BackendConfig) *AnthropicClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	timeout := cfg.Timeout.Std()
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &AnthropicClient{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *AnthropicClient) Name() string    { return c.name }
func (c *AnthropicClient) Available() bool { return c.apiKey != "" }

// Invoke sends one completion request. Requests are spaced 100ms apart.
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: fmt.Errorf("API key not configured")}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.AgentDebug("[%s] invoke stage=%s model=%s prompt_len=%d", c.name, req.Stage, c.model, len(req.Prompt))

	c.mu.Lock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   8192,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classify(c.name, 0, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(c.name, 0, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classify(c.name, resp.StatusCode, fmt.Errorf("API status %d: %s", resp.StatusCode, truncate(string(respBody), 200)))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindUnknown, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if parsed.Error != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: fmt.Errorf("API error: %s", parsed.Error.Message)}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if out == "" {
		return nil, &AgentError{Agent: c.name, Kind: KindUnknown, Err: fmt.Errorf("no completion returned")}
	}

	elapsed := time.Since(start)
	logging.Agent("[%s] completed stage=%s in %v response_len=%d", c.name, req.Stage, elapsed, len(out))
	return &Response{Text: out, Model: c.model, Elapsed: elapsed}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
