// Package parse classifies raw agent output into structured edits, a
// reflection, or an unparseable response.
package parse

import (
	"fmt"
	"strings"

	"evoforge/internal/artifact"
)

// Kind classifies a parsed response.
type Kind string

const (
	KindDiff        Kind = "diff"
	KindReflection  Kind = "reflection"
	KindUnparseable Kind = "unparseable"
)

// SEARCH/REPLACE block markers.
const (
	searchMarker  = "<<<<<<< SEARCH"
	divideMarker  = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

// ParseError describes why a response could not be classified.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable response: %s", e.Reason)
}

// Result is the outcome of parsing one agent response.
type Result struct {
	Kind       Kind
	Edits      []artifact.Edit
	Reflection string
	// Err carries the parse failure when Kind is KindUnparseable.
	Err *ParseError
}

// Response parses raw agent output. One or more well-formed SEARCH/REPLACE
// blocks yield KindDiff with any surrounding prose kept as Reflection.
// Prose with no blocks is KindReflection. Unbalanced block markers or an
// effectively empty response yield KindUnparseable; a reformat retry is the
// caller's decision.
func Response(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return unparseable("empty response")
	}

	edits, prose, err := extractBlocks(raw)
	if err != nil {
		return Result{Kind: KindUnparseable, Err: err}
	}

	if len(edits) > 0 {
		return Result{Kind: KindDiff, Edits: edits, Reflection: strings.TrimSpace(prose)}
	}

	reflection := reflectionText(trimmed)
	if reflection == "" {
		return unparseable("no edits and no substantive prose")
	}
	return Result{Kind: KindReflection, Reflection: reflection}
}

func unparseable(reason string) Result {
	return Result{Kind: KindUnparseable, Err: &ParseError{Reason: reason}}
}

// extractBlocks walks the response line by line collecting SEARCH/REPLACE
// blocks. Text outside blocks accumulates as prose.
func extractBlocks(raw string) ([]artifact.Edit, string, *ParseError) {
	const (
		outside = iota
		inSearch
		inReplace
	)

	var (
		edits   []artifact.Edit
		prose   strings.Builder
		search  strings.Builder
		replace strings.Builder
		state   = outside
	)

	for _, line := range strings.Split(raw, "\n") {
		marker := strings.TrimSpace(line)
		switch state {
		case outside:
			switch marker {
			case searchMarker:
				state = inSearch
				search.Reset()
				replace.Reset()
			case divideMarker, replaceMarker:
				return nil, "", &ParseError{Reason: fmt.Sprintf("unexpected %q outside a block", marker)}
			default:
				prose.WriteString(line)
				prose.WriteString("\n")
			}
		case inSearch:
			switch marker {
			case divideMarker:
				state = inReplace
			case searchMarker, replaceMarker:
				return nil, "", &ParseError{Reason: fmt.Sprintf("unexpected %q inside SEARCH section", marker)}
			default:
				search.WriteString(line)
				search.WriteString("\n")
			}
		case inReplace:
			switch marker {
			case replaceMarker:
				if strings.TrimSpace(search.String()) == "" {
					return nil, "", &ParseError{Reason: "block has empty SEARCH section"}
				}
				edits = append(edits, artifact.Edit{Search: search.String(), Replace: replace.String()})
				state = outside
			case searchMarker, divideMarker:
				return nil, "", &ParseError{Reason: fmt.Sprintf("unexpected %q inside REPLACE section", marker)}
			default:
				replace.WriteString(line)
				replace.WriteString("\n")
			}
		}
	}

	if state != outside {
		return nil, "", &ParseError{Reason: "unterminated SEARCH/REPLACE block"}
	}
	return edits, prose.String(), nil
}

// reflectionText extracts the reflection from prose. A ## Reflection heading
// scopes it; otherwise the whole prose body counts when it carries substance.
func reflectionText(prose string) string {
	lower := strings.ToLower(prose)
	if idx := strings.Index(lower, "## reflection"); idx >= 0 {
		section := prose[idx:]
		if nl := strings.IndexByte(section, '\n'); nl >= 0 {
			section = section[nl+1:]
		} else {
			section = ""
		}
		// Reflection runs until the next heading.
		if next := strings.Index(section, "\n## "); next >= 0 {
			section = section[:next]
		}
		return strings.TrimSpace(section)
	}

	// Code fences alone are not a reflection.
	stripped := strings.TrimSpace(stripFences(prose))
	if len(stripped) < 3 {
		return ""
	}
	return strings.TrimSpace(prose)
}

func stripFences(s string) string {
	var out strings.Builder
	inFence := false
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	return out.String()
}
