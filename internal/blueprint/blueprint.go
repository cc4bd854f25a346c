// Package blueprint defines evolution blueprints: pre-packaged recipes that
// encode an agent sequence, evaluation metrics, prompt templates, and loop
// parameters for a class of evolution tasks.
package blueprint

import (
	"fmt"
	"regexp"
	"strings"
)

// Stage is one entry in a blueprint's agent sequence.
type Stage struct {
	Agent          string `yaml:"agent"`
	Role           string `yaml:"role"`
	PromptTemplate string `yaml:"prompt_template"`
}

// Metric configures one evaluation dimension. A non-nil MinimumThreshold makes
// the metric a hard gate: scoring below it fails the candidate outright.
type Metric struct {
	Weight           float64  `yaml:"weight"`
	MinimumThreshold *float64 `yaml:"minimum_threshold,omitempty"`
}

// EvolutionParameters bound the evolution loop.
type EvolutionParameters struct {
	MaxIterations         int     `yaml:"max_iterations"`
	ConvergenceThreshold  float64 `yaml:"convergence_threshold"`
	ExplorationRate       float64 `yaml:"exploration_rate"`
	DivergenceProbability float64 `yaml:"divergence_probability"`
	ResidueInjectionRate  float64 `yaml:"residue_injection_rate"`
}

// Template is a prompt template with its required variables.
type Template struct {
	Template  string   `yaml:"template"`
	Variables []string `yaml:"variables"`
}

// ResiduePattern seeds the residue store with known-valuable failure shapes.
type ResiduePattern struct {
	Pattern        string `yaml:"pattern"`
	PotentialValue string `yaml:"potential_value"`
}

// Blueprint is a complete evolutionary recipe.
type Blueprint struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Author      string   `yaml:"author"`
	Domain      string   `yaml:"domain"`

	AgentSequence     []Stage                     `yaml:"agent_sequence"`
	Fallbacks         map[string][]string         `yaml:"fallbacks,omitempty"`
	EvaluationMetrics map[string]Metric           `yaml:"evaluation_metrics"`
	Evolution         EvolutionParameters         `yaml:"evolution_parameters"`
	PromptTemplates   map[string]Template         `yaml:"prompt_templates"`
	ResiduePatterns   map[string][]ResiduePattern `yaml:"residue_patterns,omitempty"`
	MetaInstructions  map[string][]string         `yaml:"meta_instructions,omitempty"`
}

// Validate checks structural invariants before a blueprint is registered.
func (b *Blueprint) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("blueprint missing id")
	}
	if len(b.AgentSequence) == 0 {
		return fmt.Errorf("blueprint %s: empty agent_sequence", b.ID)
	}
	if b.Evolution.MaxIterations < 1 {
		return fmt.Errorf("blueprint %s: max_iterations must be >= 1", b.ID)
	}
	for i, stage := range b.AgentSequence {
		if stage.Agent == "" || stage.Role == "" {
			return fmt.Errorf("blueprint %s: agent_sequence[%d] missing agent or role", b.ID, i)
		}
		if stage.PromptTemplate != "" {
			if _, ok := b.PromptTemplates[stage.PromptTemplate]; !ok {
				return fmt.Errorf("blueprint %s: stage %s references unknown template %q", b.ID, stage.Role, stage.PromptTemplate)
			}
		}
	}
	var total float64
	for name, m := range b.EvaluationMetrics {
		if m.Weight < 0 {
			return fmt.Errorf("blueprint %s: metric %s has negative weight", b.ID, name)
		}
		total += m.Weight
	}
	if len(b.EvaluationMetrics) > 0 && total == 0 {
		return fmt.Errorf("blueprint %s: evaluation metric weights sum to zero", b.ID)
	}
	return nil
}

// StageAt returns the stage driving the given 1-based cycle. Cycle 1 always
// uses the first entry, the final iteration uses the last (synthesis) entry,
// and intermediate cycles rotate through the middle of the sequence.
func (b *Blueprint) StageAt(cycle int) Stage {
	seq := b.AgentSequence
	n := len(seq)
	switch {
	case n == 1 || cycle <= 1:
		return seq[0]
	case cycle >= b.Evolution.MaxIterations:
		return seq[n-1]
	case n == 2:
		return seq[1]
	default:
		middle := n - 2
		return seq[1+(cycle-2)%middle]
	}
}

// StageByRole returns the stage with the given role.
func (b *Blueprint) StageByRole(role string) (Stage, bool) {
	for _, s := range b.AgentSequence {
		if s.Role == role {
			return s, true
		}
	}
	return Stage{}, false
}

// FallbacksFor returns the ordered fallback agents for a primary agent.
func (b *Blueprint) FallbacksFor(agent string) []string {
	return b.Fallbacks[agent]
}

var (
	condRe = regexp.MustCompile(`(?s)\{\{#if\s+([a-zA-Z0-9_]+)\}\}(.*?)\{\{/if\}\}`)
	varRe  = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)
)

// Render fills the template with the given variables. Conditional sections
// ({{#if var}}...{{/if}}) are kept only when the variable is non-empty.
// Missing required variables are an error.
func (t Template) Render(vars map[string]string) (string, error) {
	for _, required := range t.Variables {
		if _, ok := vars[required]; !ok {
			return "", fmt.Errorf("missing required template variable %q", required)
		}
	}

	out := condRe.ReplaceAllStringFunc(t.Template, func(block string) string {
		m := condRe.FindStringSubmatch(block)
		if vars[m[1]] == "" {
			return ""
		}
		return m[2]
	})

	out = varRe.ReplaceAllStringFunc(out, func(ref string) string {
		name := varRe.FindStringSubmatch(ref)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return ref
	})

	return strings.TrimSpace(out) + "\n", nil
}
