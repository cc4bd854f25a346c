package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleBlock(t *testing.T) {
	raw := `Here is the optimization.

<<<<<<< SEARCH
	total := 0
=======
	var total int
>>>>>>> REPLACE

This avoids the redundant literal.`

	res := Response(raw)
	require.Equal(t, KindDiff, res.Kind)
	require.Len(t, res.Edits, 1)
	assert.Equal(t, "\ttotal := 0\n", res.Edits[0].Search)
	assert.Equal(t, "\tvar total int\n", res.Edits[0].Replace)
	assert.Contains(t, res.Reflection, "Here is the optimization")
}

func TestParseMultipleBlocks(t *testing.T) {
	raw := `<<<<<<< SEARCH
a
=======
b
>>>>>>> REPLACE
<<<<<<< SEARCH
c
=======
d
>>>>>>> REPLACE`

	res := Response(raw)
	require.Equal(t, KindDiff, res.Kind)
	require.Len(t, res.Edits, 2)
	assert.Equal(t, "c\n", res.Edits[1].Search)
}

func TestParseReflectionOnly(t *testing.T) {
	raw := `## Reflection

The current implementation is already optimal for this input class.
A hash-based approach would trade space for no time gain.`

	res := Response(raw)
	require.Equal(t, KindReflection, res.Kind)
	assert.Contains(t, res.Reflection, "already optimal")
	assert.NotContains(t, res.Reflection, "## Reflection")
}

func TestParseProseWithoutHeadingIsReflection(t *testing.T) {
	res := Response("No changes needed; the loop is already O(n).")
	require.Equal(t, KindReflection, res.Kind)
}

func TestParseEmptyResponse(t *testing.T) {
	res := Response("   \n\n  ")
	require.Equal(t, KindUnparseable, res.Kind)
	require.NotNil(t, res.Err)
	assert.Contains(t, res.Err.Reason, "empty")
}

func TestParseUnterminatedBlock(t *testing.T) {
	raw := `<<<<<<< SEARCH
a
=======
b`
	res := Response(raw)
	require.Equal(t, KindUnparseable, res.Kind)
	assert.Contains(t, res.Err.Reason, "unterminated")
}

func TestParseStrayMarker(t *testing.T) {
	res := Response("some text\n>>>>>>> REPLACE\nmore text")
	require.Equal(t, KindUnparseable, res.Kind)
}

func TestParseEmptySearchSection(t *testing.T) {
	raw := `<<<<<<< SEARCH
=======
b
>>>>>>> REPLACE`
	res := Response(raw)
	require.Equal(t, KindUnparseable, res.Kind)
	assert.Contains(t, res.Err.Reason, "empty SEARCH")
}

func TestParseCodeFenceOnlyIsUnparseable(t *testing.T) {
	res := Response("```go\nfunc f() {}\n```")
	require.Equal(t, KindUnparseable, res.Kind)
}

func TestReplaceMayBeEmpty(t *testing.T) {
	raw := `<<<<<<< SEARCH
obsolete line
=======
>>>>>>> REPLACE`
	res := Response(raw)
	require.Equal(t, KindDiff, res.Kind)
	assert.Equal(t, "", res.Edits[0].Replace)
}
