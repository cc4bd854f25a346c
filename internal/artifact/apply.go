package artifact

import (
	"fmt"
	"strings"
)

// Edit is one SEARCH/REPLACE block proposed by an agent.
type Edit struct {
	Search  string
	Replace string
}

// BoundaryViolation reports an edit that could not be applied inside the
// evolvable region. It never leaves a partially modified artifact behind.
type BoundaryViolation struct {
	Reason string
	Search string
}

func (e *BoundaryViolation) Error() string {
	excerpt := e.Search
	if len(excerpt) > 80 {
		excerpt = excerpt[:80] + "..."
	}
	return fmt.Sprintf("boundary violation: %s (search: %q)", e.Reason, excerpt)
}

// Apply applies edits to content in order. Every search text must match
// exactly once inside the evolvable region; zero matches, ambiguous matches,
// or a search touching the marker lines all fail with BoundaryViolation and
// leave the original content untouched.
func Apply(content string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return content, nil
	}

	region, err := FindRegion(content)
	if err != nil {
		return "", err
	}

	head := content[:region.Start]
	body := content[region.Start:region.End]
	tail := content[region.End:]

	for _, edit := range edits {
		if edit.Search == "" {
			return "", &BoundaryViolation{Reason: "empty search text", Search: edit.Search}
		}
		if strings.Contains(edit.Search, MarkerStart) || strings.Contains(edit.Search, MarkerEnd) ||
			strings.Contains(edit.Replace, MarkerStart) || strings.Contains(edit.Replace, MarkerEnd) {
			return "", &BoundaryViolation{Reason: "edit touches region markers", Search: edit.Search}
		}

		switch n := strings.Count(body, edit.Search); {
		case n == 0:
			if region.Bounded && strings.Contains(head+tail, edit.Search) {
				return "", &BoundaryViolation{Reason: "search text matches outside the evolvable region", Search: edit.Search}
			}
			return "", &BoundaryViolation{Reason: "search text not found in evolvable region", Search: edit.Search}
		case n > 1:
			return "", &BoundaryViolation{Reason: fmt.Sprintf("search text is ambiguous (%d matches)", n), Search: edit.Search}
		}

		body = strings.Replace(body, edit.Search, edit.Replace, 1)
	}

	return head + body + tail, nil
}
