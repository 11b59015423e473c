// Package dotgraph renders a dependency graph as Graphviz DOT text, for
// decompose's --dot flag. No example repo in the retrieval pack carries a
// DOT-emitting library as a direct dependency, so this stays stdlib-only.
package dotgraph

import (
	"fmt"
	"strings"

	"github.com/kjdv/decompose/internal/graph"
)

// Render writes g as a directed graph: an edge from each program to every
// program that depends on it, matching the start-order direction.
func Render(g *graph.Graph) string {
	var b strings.Builder
	b.WriteString("digraph decompose {\n")
	for _, h := range g.All() {
		name := g.Node(h).Name
		fmt.Fprintf(&b, "  %q;\n", name)
	}
	for _, h := range g.All() {
		name := g.Node(h).Name
		for _, dep := range g.DependedBy(h) {
			fmt.Fprintf(&b, "  %q -> %q;\n", name, g.Node(dep).Name)
		}
	}
	b.WriteString("}\n")
	return b.String()
}
