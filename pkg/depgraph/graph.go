// Package depgraph records the module import graph discovered during loading.
package depgraph

import (
	"bytes"
	"fmt"
	"slices"
)

// Graph is a directed graph of module paths. An edge importer -> imported
// means importer depends on imported. Nodes keep insertion order.
type Graph struct {
	ids       map[string]int
	names     []string
	imports   [][]int // importer -> imported.
	importers [][]int // imported -> importer.
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{ids: make(map[string]int)}
}

func (g *Graph) intern(name string) int {
	if id, ok := g.ids[name]; ok {
		return id
	}

	id := len(g.names)
	g.ids[name] = id
	g.names = append(g.names, name)
	g.imports = append(g.imports, nil)
	g.importers = append(g.importers, nil)

	return id
}

// AddNode inserts a node. It returns false if the node already existed.
func (g *Graph) AddNode(name string) bool {
	if _, ok := g.ids[name]; ok {
		return false
	}

	g.intern(name)

	return true
}

// AddImport records that importer imports imported. Repeated edges are
// recorded once; it returns false for a repeat.
func (g *Graph) AddImport(importer, imported string) bool {
	from := g.intern(importer)
	to := g.intern(imported)

	if slices.Contains(g.imports[from], to) {
		return false
	}

	g.imports[from] = append(g.imports[from], to)
	g.importers[to] = append(g.importers[to], from)

	return true
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.names)
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.names)
}

// Imports returns the direct imports of name, in the order they were recorded.
func (g *Graph) Imports(name string) []string {
	id, ok := g.ids[name]
	if !ok {
		return nil
	}

	return g.resolve(g.imports[id])
}

// Importers returns the nodes that import name directly.
func (g *Graph) Importers(name string) []string {
	id, ok := g.ids[name]
	if !ok {
		return nil
	}

	return g.resolve(g.importers[id])
}

func (g *Graph) resolve(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.names[id]
	}

	return out
}

// Toposort orders nodes so every module comes after all of its imports.
// The second result is false when the graph has a cycle; the order then
// holds only the nodes outside of it.
func (g *Graph) Toposort() ([]string, bool) {
	pending := make([]int, len(g.names))
	for id := range g.names {
		pending[id] = len(g.imports[id])
	}

	queue := make([]int, 0, len(g.names))

	for id := range g.names {
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.names))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, g.names[id])

		for _, importer := range g.importers[id] {
			pending[importer]--
			if pending[importer] == 0 {
				queue = append(queue, importer)
			}
		}
	}

	return order, len(order) == len(g.names)
}

// FindCycle returns an import cycle through seed, starting and ending at seed,
// or nil if seed is on no cycle.
func (g *Graph) FindCycle(seed string) []string {
	start, ok := g.ids[seed]
	if !ok {
		return nil
	}

	visited := make([]bool, len(g.names))
	path := []int{start}

	var walk func(id int) bool

	walk = func(id int) bool {
		for _, next := range g.imports[id] {
			if next == start {
				path = append(path, next)

				return true
			}

			if visited[next] {
				continue
			}

			visited[next] = true
			path = append(path, next)

			if walk(next) {
				return true
			}

			path = path[:len(path)-1]
		}

		return false
	}

	if !walk(start) {
		return nil
	}

	return g.resolve(path)
}

// DOT renders the graph in Graphviz format. label maps a node to its display
// text; nil uses the node itself.
func (g *Graph) DOT(label func(string) string) string {
	if label == nil {
		label = func(name string) string { return name }
	}

	var buf bytes.Buffer

	buf.WriteString("digraph imports {\n")

	for id, name := range g.names {
		fmt.Fprintf(&buf, "  n%d [label=%q];\n", id, label(name))
	}

	for from, targets := range g.imports {
		for _, to := range targets {
			fmt.Fprintf(&buf, "  n%d -> n%d;\n", from, to)
		}
	}

	buf.WriteString("}\n")

	return buf.String()
}
