// Package artifact models the evolving artifact: its content, the evolvable
// region bounded by marker lines, and the application of agent-proposed edits.
package artifact

import (
	"fmt"
	"strings"
)

// Marker lines bounding the evolvable region. Only content strictly between
// them may be modified by an edit.
const (
	MarkerStart = "EVOLVE-BLOCK-START"
	MarkerEnd   = "EVOLVE-BLOCK-END"
)

// Artifact is a snapshot of the evolving content at one point in a task.
type Artifact struct {
	TaskID   string
	Version  int
	Language string
	Content  string
}

// Region is the evolvable slice of an artifact's content.
type Region struct {
	// Start and End are byte offsets into Content. The region is
	// Content[Start:End], excluding the marker lines themselves.
	Start int
	End   int
	// Bounded reports whether explicit markers were found. When false the
	// whole content is evolvable.
	Bounded bool
}

// FindRegion locates the evolvable region in content. With no markers the
// entire content is the region. A start marker without a matching end marker
// (or vice versa) is an error.
func FindRegion(content string) (Region, error) {
	startLine := lineIndex(content, MarkerStart)
	endLine := lineIndex(content, MarkerEnd)

	if startLine < 0 && endLine < 0 {
		return Region{Start: 0, End: len(content), Bounded: false}, nil
	}
	if startLine < 0 || endLine < 0 {
		return Region{}, fmt.Errorf("unbalanced evolve markers: start=%v end=%v", startLine >= 0, endLine >= 0)
	}

	// Offset just past the start marker's newline.
	start := startLine
	if nl := strings.IndexByte(content[startLine:], '\n'); nl >= 0 {
		start = startLine + nl + 1
	} else {
		start = len(content)
	}
	if endLine < start {
		return Region{}, fmt.Errorf("evolve end marker precedes start marker")
	}
	return Region{Start: start, End: endLine, Bounded: true}, nil
}

// lineIndex returns the byte offset of the first line containing marker, or -1.
func lineIndex(content, marker string) int {
	offset := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, marker) {
			return offset
		}
		offset += len(line) + 1
	}
	return -1
}

// Evolvable returns the evolvable portion of the artifact's content.
func (a *Artifact) Evolvable() (string, error) {
	region, err := FindRegion(a.Content)
	if err != nil {
		return "", err
	}
	return a.Content[region.Start:region.End], nil
}
