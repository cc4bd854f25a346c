package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"evoforge/internal/config"
	"evoforge/internal/logging"
)

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	name    string
	apiKey  string
	model   string
	timeout time.Duration

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a client for one configured backend. The SDK client
// is created lazily on first invoke so an unconfigured backend costs nothing.
func NewGeminiClient(name string, cfg config.BackendConfig) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-pro"
	}
	timeout := cfg.Timeout.Std()
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &GeminiClient{name: name, apiKey: cfg.APIKey, model: model, timeout: timeout}
}

func (c *GeminiClient) Name() string    { return c.name }
func (c *GeminiClient) Available() bool { return c.apiKey != "" }

func (c *GeminiClient) ensureClient(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}
	c.client = client
	return nil
}

// Invoke sends one completion request.
func (c *GeminiClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, &AgentError{Agent: c.name, Kind: KindRejected, Err: fmt.Errorf("API key not configured")}
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.ensureClient(ctx); err != nil {
		return nil, &AgentError{Agent: c.name, Kind: KindUnknown, Err: err}
	}

	start := time.Now()
	logging.AgentDebug("[%s] invoke stage=%s model=%s prompt_len=%d", c.name, req.Stage, c.model, len(req.Prompt))

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "quota"):
			return nil, &AgentError{Agent: c.name, Kind: KindRateLimited, Err: err}
		default:
			return nil, classify(c.name, 0, err)
		}
	}

	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return nil, &AgentError{Agent: c.name, Kind: KindUnknown, Err: fmt.Errorf("no completion returned")}
	}

	elapsed := time.Since(start)
	logging.Agent("[%s] completed stage=%s in %v response_len=%d", c.name, req.Stage, elapsed, len(out))
	return &Response{Text: out, Model: c.model, Elapsed: elapsed}, nil
}
