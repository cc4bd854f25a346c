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

// OpenAIClient talks to the OpenAI chat completions API, or any compatible
// endpoint via base_url.
type OpenAIClient struct {
	name        string
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIClient creates a client for one configured backend.
func NewOpenAIClient(name string, cfg config.BackendConfig) *OpenAIClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	timeout := cfg.Timeout.Std()
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &OpenAIClient{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) Name() string    { return c.name }
func (c *OpenAIClient) Available() bool { return c.apiKey != "" }

// Invoke sends one completion request. Requests are spaced 100ms apart.
func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (*Response, error) {
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

	messages := []openAIMessage{}
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(openAIRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   8192,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindUnknown, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if parsed.Error != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: fmt.Errorf("API error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &AgentError{Agent: c.name, Kind: KindUnknown, Err: fmt.Errorf("no completion returned")}
	}

	out := strings.TrimSpace(parsed.Choices[0].Message.Content)
	elapsed := time.Since(start)
	logging.Agent("[%s] completed stage=%s in %v response_len=%d", c.name, req.Stage, elapsed, len(out))
	return &Response{Text: out, Model: c.model, Elapsed: elapsed}, nil
}
