// Package config loads evoforge configuration from YAML with environment
// variable overrides for secrets and deployment-specific settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all evoforge configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Engine loop limits and retry policy
	Engine EngineConfig `yaml:"engine"`

	// Model backend configuration, keyed by agent name
	LLM LLMConfig `yaml:"llm"`

	// Coherence band bounds
	Coherence CoherenceConfig `yaml:"coherence"`

	// Residue store and classification
	Residue ResidueConfig `yaml:"residue"`

	// Prompt assembly budget
	Prompt PromptConfig `yaml:"prompt"`

	// Blueprint directory
	BlueprintDir string `yaml:"blueprint_dir"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// Duration wraps time.Duration so YAML values like "90s" parse directly.
type Duration time.Duration

// UnmarshalYAML accepts Go duration strings or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML renders the duration in Go string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig bounds the per-task evolution loop.
type EngineConfig struct {
	// MaxConsecutiveFailures before a task escalates to terminal Failed.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	// ParseRetryLimit bounds reformatting retries for unparseable output.
	ParseRetryLimit int `yaml:"parse_retry_limit"`

	// AgentRetries bounds transient-error retries per agent invocation.
	AgentRetries int `yaml:"agent_retries"`

	// AgentTimeout is the per-invocation timeout.
	AgentTimeout Duration `yaml:"agent_timeout"`

	// EvaluatorTimeout is the per-evaluator timeout.
	EvaluatorTimeout Duration `yaml:"evaluator_timeout"`

	// RetryBackoff is the base delay for exponential backoff between retries.
	RetryBackoff Duration `yaml:"retry_backoff"`

	// PauseOnFailure makes a task wait for operator guidance after a failed
	// cycle instead of looping immediately.
	PauseOnFailure bool `yaml:"pause_on_failure"`
}

// LLMConfig configures model backends. Backends are keyed by agent name as
// referenced from blueprint agent sequences.
type LLMConfig struct {
	Backends map[string]BackendConfig `yaml:"backends"`
}

// BackendConfig configures a single model backend.
type BackendConfig struct {
	Provider string        `yaml:"provider"` // anthropic, gemini, openai
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  Duration      `yaml:"timeout"`
}

// CoherenceConfig configures the stability predicate's band bounds.
type CoherenceConfig struct {
	// Floor is the lower bound for the combined signal product.
	Floor float64 `yaml:"floor"`

	// MaxDrop is the max relative drop of the product between consecutive
	// cycles before the tracker forces finalize.
	MaxDrop float64 `yaml:"max_drop"`

	// Window is how many recent cycles feed the variance-based signals.
	Window int `yaml:"window"`
}

// ResidueConfig configures residue classification and storage.
type ResidueConfig struct {
	// DatabasePath for the sqlite residue store.
	DatabasePath string `yaml:"database_path"`

	// NearMissEpsilon: aggregate scores within epsilon of the convergence
	// threshold without acceptance classify as near-miss.
	NearMissEpsilon float64 `yaml:"near_miss_epsilon"`

	// FindLimit bounds how many entries FindRelevant returns.
	FindLimit int `yaml:"find_limit"`
}

// PromptConfig configures prompt assembly.
type PromptConfig struct {
	// MaxTokens is the approximate context budget for an assembled prompt.
	MaxTokens int `yaml:"max_tokens"`

	// MaxResidueExcerpts caps residue entries injected per prompt.
	MaxResidueExcerpts int `yaml:"max_residue_excerpts"`
}

// LoggingConfig configures the categorized logger.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Dir     string `yaml:"dir"`
	JSON    bool   `yaml:"json"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:    "evoforge",
		Version: "0.1.0",
		Engine: EngineConfig{
			MaxConsecutiveFailures: 3,
			ParseRetryLimit:        2,
			AgentRetries:           3,
			AgentTimeout:           Duration(120 * time.Second),
			EvaluatorTimeout:       Duration(30 * time.Second),
			RetryBackoff:           Duration(time.Second),
		},
		LLM: LLMConfig{Backends: map[string]BackendConfig{}},
		Coherence: CoherenceConfig{
			Floor:   0.15,
			MaxDrop: 0.5,
			Window:  3,
		},
		Residue: ResidueConfig{
			DatabasePath:    "residue.db",
			NearMissEpsilon: 0.05,
			FindLimit:       5,
		},
		Prompt: PromptConfig{
			MaxTokens:          24000,
			MaxResidueExcerpts: 5,
		},
		BlueprintDir: "blueprints",
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// Load reads configuration from a YAML file, layered over defaults, then
// applies environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers EVOFORGE_* environment variables over file values.
// API keys fall back to the conventional provider variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EVOFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
		c.Logging.Enabled = true
	}
	if v := os.Getenv("EVOFORGE_RESIDUE_DB"); v != "" {
		c.Residue.DatabasePath = v
	}
	if v := os.Getenv("EVOFORGE_BLUEPRINT_DIR"); v != "" {
		c.BlueprintDir = v
	}
	if v := os.Getenv("EVOFORGE_MAX_PROMPT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Prompt.MaxTokens = n
		}
	}

	for name, backend := range c.LLM.Backends {
		if backend.APIKey != "" {
			continue
		}
		switch backend.Provider {
		case "anthropic":
			backend.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "gemini":
			backend.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			backend.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		c.LLM.Backends[name] = backend
	}
}

// Validate checks that limits are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Engine.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be >= 1")
	}
	if c.Engine.ParseRetryLimit < 0 {
		return fmt.Errorf("parse_retry_limit must be >= 0")
	}
	if c.Coherence.Floor < 0 || c.Coherence.Floor >= 1 {
		return fmt.Errorf("coherence floor must be in [0, 1)")
	}
	if c.Coherence.Window < 1 {
		return fmt.Errorf("coherence window must be >= 1")
	}
	if c.Residue.NearMissEpsilon < 0 {
		return fmt.Errorf("near_miss_epsilon must be >= 0")
	}
	if c.Prompt.MaxTokens < 1000 {
		return fmt.Errorf("prompt max_tokens must be >= 1000")
	}
	return nil
}
