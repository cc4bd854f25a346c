package agent

import (
	"fmt"

	"evoforge/internal/config"
)

// NewCapability builds the client for one configured backend.
func NewCapability(name string, cfg config.BackendConfig) (Capability, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(name, cfg), nil
	case "gemini":
		return NewGeminiClient(name, cfg), nil
	case "openai", "openai_compatible":
		return NewOpenAIClient(name, cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q for agent %s", cfg.Provider, name)
	}
}

// BuildAll constructs capabilities for every configured backend.
func BuildAll(llm config.LLMConfig) (map[string]Capability, error) {
	out := make(map[string]Capability, len(llm.Backends))
	for name, backend := range llm.Backends {
		cap, err := NewCapability(name, backend)
		if err != nil {
			return nil, err
		}
		out[name] = cap
	}
	return out, nil
}
