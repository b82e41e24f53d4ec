package depgraph_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jormeli/slangload/pkg/depgraph"
)

func TestAddNode_Duplicate(t *testing.T) {
	t.Parallel()

	graph := depgraph.New()

	assert.True(t, graph.AddNode("a"))
	assert.False(t, graph.AddNode("a"))
	assert.Equal(t, 1, graph.Len())
}

func TestAddImport_Repeat(t *testing.T) {
	t.Parallel()

	graph := depgraph.New()

	assert.True(t, graph.AddImport("a", "b"))
	assert.False(t, graph.AddImport("a", "b"))
	assert.Equal(t, []string{"b"}, graph.Imports("a"))
	assert.Equal(t, []string{"a"}, graph.Importers("b"))
	assert.Nil(t, graph.Imports("zzz"))
}

func TestToposort_Diamond(t *testing.T) {
	t.Parallel()

	graph := depgraph.New()
	graph.AddImport("a", "b")
	graph.AddImport("a", "c")
	graph.AddImport("b", "d")
	graph.AddImport("c", "d")

	order, ok := graph.Toposort()
	assert.True(t, ok)
	assert.Len(t, order, 4)

	pos := func(name string) int { return slices.Index(order, name) }

	assert.Less(t, pos("d"), pos("b"))
	assert.Less(t, pos("d"), pos("c"))
	assert.Less(t, pos("b"), pos("a"))
	assert.Less(t, pos("c"), pos("a"))
}

func TestToposort_Cycle(t *testing.T) {
	t.Parallel()

	graph := depgraph.New()
	graph.AddImport("a", "b")
	graph.AddImport("b", "c")
	graph.AddImport("c", "b")

	_, ok := graph.Toposort()
	assert.False(t, ok)

	assert.Equal(t, []string{"b", "c", "b"}, graph.FindCycle("b"))
	assert.Nil(t, graph.FindCycle("a"))
	assert.Nil(t, graph.FindCycle("missing"))
}

func TestDOT(t *testing.T) {
	t.Parallel()

	graph := depgraph.New()
	graph.AddImport("/src/a.slang", "/src/b.slang")

	dot := graph.DOT(nil)

	assert.Contains(t, dot, "digraph imports {")
	assert.Contains(t, dot, `n0 [label="/src/a.slang"];`)
	assert.Contains(t, dot, "n0 -> n1;")
}
