package blueprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBlueprintValidates(t *testing.T) {
	bp := DefaultAlgorithmOptimization()
	require.NoError(t, bp.Validate())

	assert.Equal(t, "algorithm_optimization", bp.ID)
	assert.Len(t, bp.AgentSequence, 4)
	assert.Equal(t, 5, bp.Evolution.MaxIterations)

	correctness := bp.EvaluationMetrics["correctness"]
	require.NotNil(t, correctness.MinimumThreshold)
	assert.Equal(t, 1.0, *correctness.MinimumThreshold)
	assert.Equal(t, 0.5, correctness.Weight)
}

func TestStageRotation(t *testing.T) {
	bp := DefaultAlgorithmOptimization()

	// First cycle always opens with the first agent, the final iteration is
	// reserved for synthesis, and the middle rotates.
	assert.Equal(t, "initial_optimization", bp.StageAt(1).Role)
	assert.Equal(t, "code_review", bp.StageAt(2).Role)
	assert.Equal(t, "edge_case_testing", bp.StageAt(3).Role)
	assert.Equal(t, "code_review", bp.StageAt(4).Role)
	assert.Equal(t, "final_synthesis", bp.StageAt(5).Role)
}

func TestStageRotationShortSequences(t *testing.T) {
	single := &Blueprint{
		AgentSequence: []Stage{{Agent: "claude", Role: "only"}},
		Evolution:     EvolutionParameters{MaxIterations: 3},
	}
	assert.Equal(t, "only", single.StageAt(1).Role)
	assert.Equal(t, "only", single.StageAt(3).Role)

	pair := &Blueprint{
		AgentSequence: []Stage{
			{Agent: "gemini", Role: "draft"},
			{Agent: "claude", Role: "refine"},
		},
		Evolution: EvolutionParameters{MaxIterations: 4},
	}
	assert.Equal(t, "draft", pair.StageAt(1).Role)
	assert.Equal(t, "refine", pair.StageAt(2).Role)
	assert.Equal(t, "refine", pair.StageAt(4).Role)
}

func TestValidateRejectsBrokenBlueprints(t *testing.T) {
	bp := DefaultAlgorithmOptimization()
	bp.AgentSequence = nil
	assert.Error(t, bp.Validate())

	bp = DefaultAlgorithmOptimization()
	bp.Evolution.MaxIterations = 0
	assert.Error(t, bp.Validate())

	bp = DefaultAlgorithmOptimization()
	bp.AgentSequence[0].PromptTemplate = "does_not_exist"
	assert.Error(t, bp.Validate())
}

func TestTemplateRenderFillsVariables(t *testing.T) {
	tmpl := Template{
		Template:  "Goal: {{goal}}\n{{#if guidance}}Guidance: {{guidance}}\n{{/if}}Code:\n{{code}}",
		Variables: []string{"goal", "code"},
	}

	out, err := tmpl.Render(map[string]string{
		"goal":     "make it faster",
		"code":     "def f(): pass",
		"guidance": "prefer iterative",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Goal: make it faster")
	assert.Contains(t, out, "Guidance: prefer iterative")
	assert.Contains(t, out, "def f(): pass")
}

func TestTemplateRenderDropsEmptyConditionals(t *testing.T) {
	tmpl := Template{
		Template:  "Goal: {{goal}}\n{{#if guidance}}Guidance: {{guidance}}\n{{/if}}done",
		Variables: []string{"goal"},
	}

	out, err := tmpl.Render(map[string]string{"goal": "optimize"})
	require.NoError(t, err)
	assert.NotContains(t, out, "Guidance")
	assert.Contains(t, out, "done")
}

func TestTemplateRenderMissingRequiredVariable(t *testing.T) {
	tmpl := Template{Template: "{{goal}}", Variables: []string{"goal"}}
	_, err := tmpl.Render(map[string]string{})
	assert.Error(t, err)
}
