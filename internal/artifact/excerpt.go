package artifact

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ChangeStats summarizes an edit between two artifact versions.
type ChangeStats struct {
	LinesAdded   int
	LinesRemoved int
}

var dmp = newDMP()

func newDMP() *diffmatchpatch.DiffMatchPatch {
	d := diffmatchpatch.New()
	d.DiffTimeout = 0
	return d
}

func lineDiffs(oldContent, newContent string) []diffmatchpatch.Diff {
	// Line-level reduction avoids newline boundary artifacts.
	a, b, lineArray := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

// Stats computes line-level change counts between two versions.
func Stats(oldContent, newContent string) ChangeStats {
	var s ChangeStats
	for _, d := range lineDiffs(oldContent, newContent) {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			s.LinesAdded += n
		case diffmatchpatch.DiffDelete:
			s.LinesRemoved += n
		}
	}
	return s
}

// Excerpt renders a compact +/- summary of the change, capped at maxLines
// changed lines. Used for residue entries and cycle logs.
func Excerpt(oldContent, newContent string, maxLines int) string {
	var b strings.Builder
	emitted := 0
	for _, d := range lineDiffs(oldContent, newContent) {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		prefix := "+ "
		if d.Type == diffmatchpatch.DiffDelete {
			prefix = "- "
		}
		for _, line := range splitLines(d.Text) {
			if emitted >= maxLines {
				b.WriteString("...\n")
				return b.String()
			}
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteString("\n")
			emitted++
		}
	}
	return b.String()
}

func countLines(text string) int {
	return len(splitLines(text))
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
