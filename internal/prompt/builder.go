// Package prompt assembles deterministic, budgeted prompts from the artifact
// snapshot, blueprint templates, residue excerpts, and operator guidance.
package prompt

import (
	"fmt"
	"strings"

	"evoforge/internal/blueprint"
	"evoforge/internal/logging"
)

// EstimateTokens approximates the token count of a string (chars / 4).
func EstimateTokens(s string) int {
	return len(s) / 4
}

// MetaProvider supplies the system prompt framing a stage invocation.
type MetaProvider interface {
	SystemPrompt(bp *blueprint.Blueprint, stage blueprint.Stage) string
}

// BlueprintMeta derives the system prompt from the blueprint's meta
// instructions.
type BlueprintMeta struct{}

// SystemPrompt renders the blueprint's meta instruction categories as a
// stable, ordered system prompt.
func (BlueprintMeta) SystemPrompt(bp *blueprint.Blueprint, stage blueprint.Stage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s stage of an evolutionary optimization loop for %s.\n", stage.Role, bp.Domain)
	for _, category := range []string{"prioritize_goals", "symbolic_residue_focus"} {
		lines, ok := bp.MetaInstructions[category]
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(strings.ReplaceAll(category, "_", " "))
		b.WriteString(":\n")
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String())
}

// StageOutput is a prior cycle's contribution, oldest first.
type StageOutput struct {
	Cycle   int
	Role    string
	Summary string
}

// Inputs carries everything a prompt is assembled from. Residue, PriorOutputs,
// and Guidance are ordered oldest first.
type Inputs struct {
	Goal      string
	Language  string
	Artifact  string
	Blueprint *blueprint.Blueprint
	Stage     blueprint.Stage

	Residue      []string
	PriorOutputs []StageOutput
	Guidance     []string
}

// Prompt is an assembled, budget-compliant prompt.
type Prompt struct {
	System string
	User   string
	Tokens int
	// Dropped records budget truncation, e.g. "residue" entries removed.
	Dropped map[string]int
}

// Builder assembles prompts under an approximate token budget. Assembly is
// deterministic: identical inputs yield identical prompts.
type Builder struct {
	MaxTokens          int
	MaxResidueExcerpts int
	Meta               MetaProvider
}

// NewBuilder creates a builder with the given budget.
func NewBuilder(maxTokens, maxResidue int) *Builder {
	return &Builder{MaxTokens: maxTokens, MaxResidueExcerpts: maxResidue, Meta: BlueprintMeta{}}
}

// Build assembles the prompt for one stage invocation. On budget overflow it
// drops residue excerpts oldest first, then prior stage outputs oldest first,
// then guidance oldest first. The goal and artifact snapshot are never
// truncated; a prompt still over budget after all droppable content is gone
// is an error.
func (b *Builder) Build(in Inputs) (*Prompt, error) {
	if in.Blueprint == nil {
		return nil, fmt.Errorf("prompt build requires a blueprint")
	}

	residue := in.Residue
	if b.MaxResidueExcerpts > 0 && len(residue) > b.MaxResidueExcerpts {
		// Keep the newest excerpts when over the injection cap.
		residue = residue[len(residue)-b.MaxResidueExcerpts:]
	}
	prior := in.PriorOutputs
	guidance := in.Guidance

	dropped := map[string]int{}
	for {
		p, err := b.render(in, residue, prior, guidance)
		if err != nil {
			return nil, err
		}
		p.Tokens = EstimateTokens(p.System) + EstimateTokens(p.User)
		if b.MaxTokens <= 0 || p.Tokens <= b.MaxTokens {
			p.Dropped = dropped
			if len(dropped) > 0 {
				logging.Get(logging.CategoryPrompt).Debug("prompt truncated stage=%s dropped=%v tokens=%d", in.Stage.Role, dropped, p.Tokens)
			}
			return p, nil
		}

		switch {
		case len(residue) > 0:
			residue = residue[1:]
			dropped["residue"]++
		case len(prior) > 0:
			prior = prior[1:]
			dropped["prior_outputs"]++
		case len(guidance) > 0:
			guidance = guidance[1:]
			dropped["guidance"]++
		default:
			return nil, fmt.Errorf("prompt exceeds budget (%d > %d tokens) with nothing left to drop", p.Tokens, b.MaxTokens)
		}
	}
}

func (b *Builder) render(in Inputs, residue []string, prior []StageOutput, guidance []string) (*Prompt, error) {
	vars := map[string]string{
		"goal":     in.Goal,
		"code":     in.Artifact,
		"language": in.Language,
	}
	if len(residue) > 0 {
		vars["symbolic_residue"] = "- " + strings.Join(residue, "\n- ")
	}
	if len(prior) > 0 {
		var sb strings.Builder
		for _, out := range prior {
			fmt.Fprintf(&sb, "[cycle %d, %s]\n%s\n", out.Cycle, out.Role, out.Summary)
		}
		vars["prior_outputs"] = strings.TrimSpace(sb.String())
	}
	if len(guidance) > 0 {
		vars["guidance"] = "- " + strings.Join(guidance, "\n- ")
	}

	tmpl, ok := in.Blueprint.PromptTemplates[in.Stage.PromptTemplate]
	if !ok {
		return nil, fmt.Errorf("stage %s references unknown template %q", in.Stage.Role, in.Stage.PromptTemplate)
	}
	user, err := tmpl.Render(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s template: %w", in.Stage.Role, err)
	}

	meta := b.Meta
	if meta == nil {
		meta = BlueprintMeta{}
	}
	return &Prompt{System: meta.SystemPrompt(in.Blueprint, in.Stage), User: user}, nil
}
