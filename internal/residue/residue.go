// Package residue preserves the informative failures of evolution: near
// misses, innovative fragments, and outright failures, so later prompts can
// learn from them.
package residue

import (
	"strings"
	"time"
)

// Category classifies a residue entry.
type Category string

const (
	// CategoryFailure records a cycle that failed outright.
	CategoryFailure Category = "failure"
	// CategoryNearMiss records a rejected candidate that came close.
	CategoryNearMiss Category = "near_miss"
	// CategoryFragment records promising content that was not adopted.
	CategoryFragment Category = "fragment"
	// CategoryProgress records an accepted improvement.
	CategoryProgress Category = "progress"
)

// Entry is one immutable residue record.
type Entry struct {
	ID        string
	TaskID    string
	Cycle     int
	Category  Category
	Summary   string
	Detail    string
	Excerpt   string
	Score     float64
	Goal      string
	Domain    string
	CreatedAt time.Time
}

// PromptLine renders the entry as a single excerpt line for prompt injection.
func (e Entry) PromptLine() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Category))
	b.WriteString("] ")
	b.WriteString(e.Summary)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// tokenize lowercases and splits text into keyword tokens, dropping short
// noise words.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "while": true, "func": true,
	"return": true, "range": true, "var": true, "int": true, "string": true,
}
