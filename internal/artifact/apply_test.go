package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const boundedContent = `// helper, do not touch
func helper() int { return 1 }

// EVOLVE-BLOCK-START
func target(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
// EVOLVE-BLOCK-END

func main() {}
`

func TestApplySingleEdit(t *testing.T) {
	out, err := Apply(boundedContent, []Edit{{
		Search:  "\ttotal := 0\n",
		Replace: "\tvar total int\n",
	}})
	require.NoError(t, err)
	assert.Contains(t, out, "var total int")
	assert.NotContains(t, out, "total := 0")
	// Content outside the region is untouched.
	assert.Contains(t, out, "func helper() int { return 1 }")
}

func TestApplySequentialEdits(t *testing.T) {
	out, err := Apply(boundedContent, []Edit{
		{Search: "total := 0", Replace: "sum := 0"},
		{Search: "total += x", Replace: "sum += x"},
		{Search: "return total", Replace: "return sum"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "sum := 0")
	assert.Contains(t, out, "return sum")
}

func TestApplyRejectsMatchOutsideRegion(t *testing.T) {
	_, err := Apply(boundedContent, []Edit{{
		Search:  "func helper() int { return 1 }",
		Replace: "func helper() int { return 2 }",
	}})
	var bv *BoundaryViolation
	require.ErrorAs(t, err, &bv)
	assert.Contains(t, bv.Reason, "outside")
}

func TestApplyRejectsNoMatch(t *testing.T) {
	_, err := Apply(boundedContent, []Edit{{Search: "not present", Replace: "x"}})
	var bv *BoundaryViolation
	require.ErrorAs(t, err, &bv)
	assert.Contains(t, bv.Reason, "not found")
}

func TestApplyRejectsAmbiguousMatch(t *testing.T) {
	_, err := Apply(boundedContent, []Edit{{Search: "total", Replace: "sum"}})
	var bv *BoundaryViolation
	require.ErrorAs(t, err, &bv)
	assert.Contains(t, bv.Reason, "ambiguous")
}

func TestApplyRejectsMarkerEdits(t *testing.T) {
	_, err := Apply(boundedContent, []Edit{{
		Search:  "// EVOLVE-BLOCK-END",
		Replace: "",
	}})
	var bv *BoundaryViolation
	require.ErrorAs(t, err, &bv)
}

func TestApplyUnboundedContentIsFullyEvolvable(t *testing.T) {
	out, err := Apply("alpha\nbeta\n", []Edit{{Search: "beta", Replace: "gamma"}})
	require.NoError(t, err)
	assert.Equal(t, "alpha\ngamma\n", out)
}

func TestFindRegionUnbalancedMarkers(t *testing.T) {
	_, err := FindRegion("x\n// EVOLVE-BLOCK-START\ny\n")
	assert.Error(t, err)
}

func TestEvolvableExtractsRegion(t *testing.T) {
	a := &Artifact{Content: boundedContent}
	region, err := a.Evolvable()
	require.NoError(t, err)
	assert.Contains(t, region, "func target")
	assert.NotContains(t, region, "helper")
	assert.NotContains(t, region, MarkerStart)
}
