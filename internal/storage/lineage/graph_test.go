package lineage_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/errors"
	"github.com/stratadb/strata/internal/storage/lineage"
)

// buildChain records w0 -> w1 -> ... -> wN-1 and returns the identifiers
func buildChain(t *testing.T, g *lineage.Graph, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("w%d", i)
		var parents []string
		if i > 0 {
			parents = []string{ids[i-1]}
		}
		require.NoError(t, g.Record(ids[i], parents))
	}
	return ids
}

func TestRecordAndContains(t *testing.T) {
	g := lineage.NewGraph()

	require.NoError(t, g.Record("a", nil))
	require.NoError(t, g.Record("b", []string{"a"}))

	assert.True(t, g.Contains("a"))
	assert.True(t, g.Contains("b"))
	assert.False(t, g.Contains("c"))
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestRecordDuplicateNode(t *testing.T) {
	g := lineage.NewGraph()

	require.NoError(t, g.Record("a", nil))
	err := g.Record("a", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDuplicateNode, errors.GetCode(err))

	// The failed record must not have mutated the graph
	assert.Equal(t, 1, g.NodeCount())
}

func TestRecordUnknownParent(t *testing.T) {
	g := lineage.NewGraph()

	err := g.Record("b", []string{"ghost"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnknownParent, errors.GetCode(err))
	assert.False(t, g.Contains("b"))
}

func TestRecordSelfParentCycle(t *testing.T) {
	g := lineage.NewGraph()

	err := g.Record("a", []string{"a"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCycleDetected, errors.GetCode(err))
}

func TestAncestorsOrderAndDedup(t *testing.T) {
	g := lineage.NewGraph()

	// Diamond: root -> left, root -> right, left+right -> merge
	require.NoError(t, g.Record("root", nil))
	require.NoError(t, g.Record("left", []string{"root"}))
	require.NoError(t, g.Record("right", []string{"root"}))
	require.NoError(t, g.Record("merge", []string{"left", "right"}))

	var ancestors []string
	for id := range g.Ancestors("merge") {
		ancestors = append(ancestors, id)
	}

	// Breadth-first: both parents before the shared grandparent, root once
	require.Len(t, ancestors, 3)
	assert.ElementsMatch(t, []string{"left", "right"}, ancestors[:2])
	assert.Equal(t, "root", ancestors[2])
}

func TestDescendants(t *testing.T) {
	g := lineage.NewGraph()

	ids := buildChain(t, g, 4)

	var descendants []string
	for id := range g.Descendants(ids[0]) {
		descendants = append(descendants, id)
	}
	assert.Equal(t, []string{"w1", "w2", "w3"}, descendants)

	assert.Equal(t, 3, g.DescendantCount(ids[0]))
	assert.Equal(t, 0, g.DescendantCount(ids[3]))
}

func TestTraversalExcludesStartAndIsRestartable(t *testing.T) {
	g := lineage.NewGraph()
	ids := buildChain(t, g, 3)

	seq := g.Ancestors(ids[2])

	for id := range seq {
		assert.NotEqual(t, ids[2], id)
	}

	// A second iteration over the same sequence yields the same results
	count := 0
	for range seq {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestTraversalEarlyStop(t *testing.T) {
	g := lineage.NewGraph()
	ids := buildChain(t, g, 100)

	visited := 0
	for range g.Ancestors(ids[99]) {
		visited++
		if visited == 5 {
			break
		}
	}
	assert.Equal(t, 5, visited)
}

func TestLeastCommonAncestor(t *testing.T) {
	g := lineage.NewGraph()

	// Fork: root -> a1 -> a2, root -> b1
	require.NoError(t, g.Record("root", nil))
	require.NoError(t, g.Record("a1", []string{"root"}))
	require.NoError(t, g.Record("a2", []string{"a1"}))
	require.NoError(t, g.Record("b1", []string{"root"}))

	lca, ok := g.LeastCommonAncestor("a2", "b1", 0)
	require.True(t, ok)
	assert.Equal(t, "root", lca)
}

func TestLeastCommonAncestorOnOwnAncestry(t *testing.T) {
	g := lineage.NewGraph()
	ids := buildChain(t, g, 4)

	// A node on the other's ancestry is its own closest common ancestor
	lca, ok := g.LeastCommonAncestor(ids[1], ids[3], 0)
	require.True(t, ok)
	assert.Equal(t, ids[1], lca)

	// Symmetric case
	lca, ok = g.LeastCommonAncestor(ids[3], ids[1], 0)
	require.True(t, ok)
	assert.Equal(t, ids[1], lca)

	// A node against itself
	lca, ok = g.LeastCommonAncestor(ids[2], ids[2], 0)
	require.True(t, ok)
	assert.Equal(t, ids[2], lca)
}

func TestLeastCommonAncestorDisjoint(t *testing.T) {
	g := lineage.NewGraph()

	require.NoError(t, g.Record("x", nil))
	require.NoError(t, g.Record("y", nil))

	_, ok := g.LeastCommonAncestor("x", "y", 0)
	assert.False(t, ok)

	_, ok = g.LeastCommonAncestor("x", "missing", 0)
	assert.False(t, ok)
}

func TestRootsAndFrontier(t *testing.T) {
	g := lineage.NewGraph()

	require.NoError(t, g.Record("r1", nil))
	require.NoError(t, g.Record("r2", nil))
	require.NoError(t, g.Record("child", []string{"r1"}))

	assert.ElementsMatch(t, []string{"r1", "r2"}, g.Roots())
	assert.ElementsMatch(t, []string{"r2", "child"}, g.Frontier())
}
