package blueprint

// DefaultAlgorithmOptimization returns the built-in blueprint for evolving
// algorithms toward better performance while holding correctness as a hard
// gate. Registered automatically by every Registry.
func DefaultAlgorithmOptimization() *Blueprint {
	correctnessGate := 1.0
	return &Blueprint{
		ID:          "algorithm_optimization",
		Name:        "Algorithm Optimization",
		Version:     "1.0.0",
		Description: "Optimizes algorithms for performance while maintaining correctness",
		Tags:        []string{"algorithm", "optimization", "performance", "time-complexity"},
		Author:      "evoforge",
		Domain:      "algorithm_optimization",

		AgentSequence: []Stage{
			{Agent: "gemini", Role: "initial_optimization", PromptTemplate: "initial_optimization"},
			{Agent: "claude", Role: "code_review", PromptTemplate: "code_review"},
			{Agent: "gpt", Role: "edge_case_testing", PromptTemplate: "edge_case_testing"},
			{Agent: "claude", Role: "final_synthesis", PromptTemplate: "final_synthesis"},
		},
		Fallbacks: map[string][]string{
			"gemini": {"claude", "gpt"},
			"claude": {"gpt", "gemini"},
			"gpt":    {"claude", "gemini"},
		},

		EvaluationMetrics: map[string]Metric{
			"correctness":      {Weight: 0.5, MinimumThreshold: &correctnessGate},
			"time_complexity":  {Weight: 0.3},
			"space_complexity": {Weight: 0.1},
			"readability":      {Weight: 0.1},
		},

		Evolution: EvolutionParameters{
			MaxIterations:         5,
			ConvergenceThreshold:  0.85,
			ExplorationRate:       0.2,
			DivergenceProbability: 0.1,
			ResidueInjectionRate:  0.3,
		},

		PromptTemplates: map[string]Template{
			"initial_optimization": {
				Template: "You are an expert algorithm optimizer. Improve the performance of the " +
					"code below while preserving its behavior exactly.\n\n" +
					"Current implementation:\n```{{language}}\n{{code}}\n```\n\n" +
					"Goal: {{goal}}\n\n" +
					"{{#if symbolic_residue}}Lessons from earlier attempts:\n{{symbolic_residue}}\n\n{{/if}}" +
					"{{#if guidance}}Operator guidance:\n{{guidance}}\n\n{{/if}}" +
					"Analyze the time and space complexity first, then propose an optimized " +
					"version. Only modify code between the EVOLVE-BLOCK-START and " +
					"EVOLVE-BLOCK-END markers. Respond with SEARCH/REPLACE blocks.",
				Variables: []string{"language", "code", "goal"},
			},
			"code_review": {
				Template: "You are an expert code reviewer focused on algorithm optimization.\n\n" +
					"Current implementation:\n```{{language}}\n{{code}}\n```\n\n" +
					"Goal: {{goal}}\n\n" +
					"{{#if prior_outputs}}Earlier stage output:\n{{prior_outputs}}\n\n{{/if}}" +
					"{{#if guidance}}Operator guidance:\n{{guidance}}\n\n{{/if}}" +
					"Verify correctness, analyze complexity, and identify edge cases. " +
					"Only modify code between the EVOLVE-BLOCK-START and EVOLVE-BLOCK-END " +
					"markers. Respond with SEARCH/REPLACE blocks, or a ## Reflection section " +
					"if no change is warranted.",
				Variables: []string{"language", "code", "goal"},
			},
			"edge_case_testing": {
				Template: "You are an expert in identifying edge cases in algorithms.\n\n" +
					"Current implementation:\n```{{language}}\n{{code}}\n```\n\n" +
					"Goal: {{goal}}\n\n" +
					"{{#if prior_outputs}}Earlier stage output:\n{{prior_outputs}}\n\n{{/if}}" +
					"{{#if guidance}}Operator guidance:\n{{guidance}}\n\n{{/if}}" +
					"Identify inputs where this implementation could fail or degrade: empty " +
					"input, single elements, already-sorted data, adversarial cases. Fix what " +
					"you find. Only modify code between the EVOLVE-BLOCK-START and " +
					"EVOLVE-BLOCK-END markers. Respond with SEARCH/REPLACE blocks.",
				Variables: []string{"language", "code", "goal"},
			},
			"final_synthesis": {
				Template: "You are an expert algorithm designer producing the final optimized " +
					"version.\n\n" +
					"Current implementation:\n```{{language}}\n{{code}}\n```\n\n" +
					"Goal: {{goal}}\n\n" +
					"{{#if prior_outputs}}History of this evolution:\n{{prior_outputs}}\n\n{{/if}}" +
					"{{#if symbolic_residue}}Lessons from earlier attempts:\n{{symbolic_residue}}\n\n{{/if}}" +
					"{{#if guidance}}Operator guidance:\n{{guidance}}\n\n{{/if}}" +
					"Synthesize the best ideas from every previous stage into one final " +
					"version that is correct, fast, and readable. Only modify code between " +
					"the EVOLVE-BLOCK-START and EVOLVE-BLOCK-END markers. Respond with " +
					"SEARCH/REPLACE blocks.",
				Variables: []string{"language", "code", "goal"},
			},
		},

		ResiduePatterns: map[string][]ResiduePattern{
			"near_misses": {
				{
					Pattern:        "Algorithm works faster but fails on empty arrays",
					PotentialValue: "May contain novel partitioning approach",
				},
				{
					Pattern:        "Reduces time complexity but increases space complexity",
					PotentialValue: "Trade-off approach valuable in memory-abundant scenarios",
				},
			},
			"innovative_fragments": {
				{
					Pattern:        "Novel caching mechanism",
					PotentialValue: "Could apply to other algorithms with repeated computation",
				},
				{
					Pattern:        "Interesting parallelization approach",
					PotentialValue: "May apply to other divide-and-conquer algorithms",
				},
			},
		},

		MetaInstructions: map[string][]string{
			"prioritize_goals": {
				"Correctness is non-negotiable",
				"Time complexity is the primary optimization target",
				"Space complexity is secondary unless specified otherwise",
				"Maintain readability and clarity of implementation",
			},
			"symbolic_residue_focus": {
				"Pay special attention to trade-offs between time and space complexity",
				"Catalog partitioning or divide-and-conquer approaches even when they fail",
				"Track optimization patterns that transfer across algorithm classes",
			},
		},
	}
}
