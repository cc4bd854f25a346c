package evaluate

import (
	"context"
	"fmt"
	"strings"

	"evoforge/internal/artifact"
)

// CorrectnessEvaluator performs structural sanity checks: the evolvable
// region must survive intact and the code must keep its delimiters balanced.
// Scores are binary; correctness is normally a hard gate.
type CorrectnessEvaluator struct{}

func (e *CorrectnessEvaluator) Name() string { return "correctness" }

func (e *CorrectnessEvaluator) Evaluate(ctx context.Context, c Candidate) (float64, error) {
	if strings.TrimSpace(c.Content) == "" {
		return 0, fmt.Errorf("empty candidate")
	}
	if _, err := artifact.FindRegion(c.Content); err != nil {
		return 0, nil
	}
	if !balanced(c.Content) {
		return 0, nil
	}
	// A candidate that deleted the entire evolvable region scores zero.
	region, err := artifact.FindRegion(c.Content)
	if err != nil {
		return 0, nil
	}
	if strings.TrimSpace(c.Content[region.Start:region.End]) == "" {
		return 0, nil
	}
	return 1, nil
}

func balanced(code string) bool {
	depth := map[rune]int{'(': 0, '[': 0, '{': 0}
	var inString, inChar, inLineComment bool
	var prev rune
	for _, r := range code {
		switch {
		case inLineComment:
			if r == '\n' {
				inLineComment = false
			}
		case inString:
			if r == '"' && prev != '\\' {
				inString = false
			}
		case inChar:
			if r == '\'' && prev != '\\' {
				inChar = false
			}
		default:
			switch r {
			case '"':
				inString = true
			case '\'':
				inChar = true
			case '/':
				if prev == '/' {
					inLineComment = true
				}
			case '(', '[', '{':
				depth[r]++
			case ')':
				depth['(']--
			case ']':
				depth['[']--
			case '}':
				depth['{']--
			}
		}
		for _, d := range depth {
			if d < 0 {
				return false
			}
		}
		prev = r
	}
	return depth['('] == 0 && depth['['] == 0 && depth['{'] == 0
}

// complexityScores ranks complexity classes, higher is better.
var complexityScores = map[string]float64{
	"O(1)":       1.0,
	"O(log n)":   0.9,
	"O(n)":       0.8,
	"O(n log n)": 0.7,
	"O(n^2)":     0.5,
	"O(n^3)":     0.3,
}

// TimeComplexityEvaluator estimates the complexity class of the evolvable
// region from loop nesting depth and recognizable algorithm names.
type TimeComplexityEvaluator struct{}

func (e *TimeComplexityEvaluator) Name() string { return "time_complexity" }

func (e *TimeComplexityEvaluator) Evaluate(ctx context.Context, c Candidate) (float64, error) {
	region, err := evolvableOf(c.Content)
	if err != nil {
		return 0, err
	}
	class := estimateComplexity(region)
	score, ok := complexityScores[class]
	if !ok {
		return 0.3, nil
	}
	return score, nil
}

func estimateComplexity(code string) string {
	lower := strings.ToLower(code)
	switch {
	case strings.Contains(lower, "merge_sort") || strings.Contains(lower, "mergesort"),
		strings.Contains(lower, "quick_sort") || strings.Contains(lower, "quicksort"),
		strings.Contains(lower, "heap_sort") || strings.Contains(lower, "heapsort"):
		return "O(n log n)"
	case strings.Contains(lower, "bubble_sort") || strings.Contains(lower, "insertion_sort"):
		return "O(n^2)"
	}

	maxDepth := 0
	depth := 0
	braces := 0
	loopBraces := []int{}
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		isLoop := strings.HasPrefix(trimmed, "for ") || strings.HasPrefix(trimmed, "for(") ||
			strings.HasPrefix(trimmed, "while ") || strings.HasPrefix(trimmed, "while(") ||
			trimmed == "for {"
		if isLoop {
			depth++
			loopBraces = append(loopBraces, braces)
			if depth > maxDepth {
				maxDepth = depth
			}
		}
		braces += strings.Count(line, "{") - strings.Count(line, "}")
		for len(loopBraces) > 0 && braces <= loopBraces[len(loopBraces)-1] {
			loopBraces = loopBraces[:len(loopBraces)-1]
			depth--
		}
	}

	switch maxDepth {
	case 0:
		return "O(1)"
	case 1:
		return "O(n)"
	case 2:
		return "O(n^2)"
	default:
		return "O(n^3)"
	}
}

// SpaceComplexityEvaluator penalizes allocation density in the evolvable
// region.
type SpaceComplexityEvaluator struct{}

func (e *SpaceComplexityEvaluator) Name() string { return "space_complexity" }

func (e *SpaceComplexityEvaluator) Evaluate(ctx context.Context, c Candidate) (float64, error) {
	region, err := evolvableOf(c.Content)
	if err != nil {
		return 0, err
	}
	lines := nonEmptyLines(region)
	if lines == 0 {
		return 0, fmt.Errorf("empty evolvable region")
	}

	allocs := 0
	for _, kw := range []string{"make(", "append(", "new(", "copy(", "list(", "dict(", "[]"} {
		allocs += strings.Count(region, kw)
	}
	density := float64(allocs) / float64(lines)
	// Zero allocation density scores 1.0, one alloc per line scores 0.2.
	score := 1.0 - 0.8*density
	return clamp(score), nil
}

// ReadabilityEvaluator scores line length discipline and comment presence in
// the evolvable region.
type ReadabilityEvaluator struct{}

func (e *ReadabilityEvaluator) Name() string { return "readability" }

func (e *ReadabilityEvaluator) Evaluate(ctx context.Context, c Candidate) (float64, error) {
	region, err := evolvableOf(c.Content)
	if err != nil {
		return 0, err
	}
	all := strings.Split(region, "\n")
	total, long, comments := 0, 0, 0
	for _, line := range all {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total++
		if len(line) > 100 {
			long++
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			comments++
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("empty evolvable region")
	}

	score := 1.0
	score -= 0.5 * float64(long) / float64(total)
	if comments == 0 && total > 10 {
		score -= 0.2
	}
	return clamp(score), nil
}

func evolvableOf(content string) (string, error) {
	region, err := artifact.FindRegion(content)
	if err != nil {
		return "", err
	}
	return content[region.Start:region.End], nil
}

func nonEmptyLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
