// Package graph builds and traverses the dependency DAG between programs.
//
// A Handle identifies a program by its position in the graph, not by name;
// callers that need the name look it up via Node. Edges run from a
// dependency to its dependees (Forward) or the reverse (Backward), matching
// the start order (dependencies first) and stop order (dependees first)
// the orchestrator needs.
package graph

import (
	"fmt"

	"github.com/kjdv/decompose/internal/config"
)

// Handle is an opaque reference to a program within a Graph.
type Handle int

// Graph is the dependency DAG derived from a config.System.
type Graph struct {
	programs []config.Program
	byName   map[string]Handle

	// dependsOn[h] is the set of handles h depends on (must start first).
	dependsOn [][]Handle
	// dependedBy[h] is the set of handles that depend on h.
	dependedBy [][]Handle
}

// From builds a Graph from a validated System. The system must already have
// passed config.Validate (unique names, all dependency targets resolvable,
// acyclic); From re-checks only that every dependency target resolves, and
// does not re-check name uniqueness or acyclicity.
func From(sys *config.System) (*Graph, error) {
	g := &Graph{
		byName: make(map[string]Handle, len(sys.Program)),
	}
	for i, p := range sys.Program {
		g.programs = append(g.programs, p)
		g.byName[p.Name] = Handle(i)
	}

	g.dependsOn = make([][]Handle, len(g.programs))
	g.dependedBy = make([][]Handle, len(g.programs))
	for i, p := range g.programs {
		h := Handle(i)
		for _, dep := range p.Depends {
			dh, ok := g.byName[dep]
			if !ok {
				return nil, fmt.Errorf("graph: program %q depends on unknown program %q", p.Name, dep)
			}
			g.dependsOn[h] = append(g.dependsOn[h], dh)
			g.dependedBy[dh] = append(g.dependedBy[dh], h)
		}
	}
	return g, nil
}

// Node returns the program at h.
func (g *Graph) Node(h Handle) config.Program {
	return g.programs[h]
}

// Lookup returns the handle for a program by name.
func (g *Graph) Lookup(name string) (Handle, bool) {
	h, ok := g.byName[name]
	return h, ok
}

// All returns every handle in the graph, in declaration order.
func (g *Graph) All() []Handle {
	out := make([]Handle, len(g.programs))
	for i := range g.programs {
		out[i] = Handle(i)
	}
	return out
}

// Roots returns handles with no dependencies (depends == []), in declaration
// order. A valid System has at least one root.
func (g *Graph) Roots() []Handle {
	var out []Handle
	for i, deps := range g.dependsOn {
		if len(deps) == 0 {
			out = append(out, Handle(i))
		}
	}
	return out
}

// Leaves returns handles nothing else depends on.
func (g *Graph) Leaves() []Handle {
	var out []Handle
	for i, dependees := range g.dependedBy {
		if len(dependees) == 0 {
			out = append(out, Handle(i))
		}
	}
	return out
}

// Depends returns the handles h directly depends on.
func (g *Graph) Depends(h Handle) []Handle {
	return g.dependsOn[h]
}

// DependedBy returns the handles that directly depend on h.
func (g *Graph) DependedBy(h Handle) []Handle {
	return g.dependedBy[h]
}

// Forward returns h's direct dependees s — the programs that declare h in
// their depends list — for which every one of s's own dependencies
// satisfies visited. This is how the orchestrator finds which programs to
// start once h becomes ready: a dependee unlocks only once all of its
// dependencies (not just h) have become ready or already stopped.
func (g *Graph) Forward(h Handle, visited func(Handle) bool) []Handle {
	var out []Handle
	for _, s := range g.dependedBy[h] {
		if allSatisfy(g.dependsOn[s], visited) {
			out = append(out, s)
		}
	}
	return out
}

// Backward returns h's direct dependencies p — the programs h's depends
// list names — for which every one of p's own dependees (including h)
// satisfies visited. This is how the orchestrator finds which programs to
// stop once h stops: a dependency unlocks for shutdown only once none of
// its dependees (not just h) are still active.
func (g *Graph) Backward(h Handle, visited func(Handle) bool) []Handle {
	var out []Handle
	for _, p := range g.dependsOn[h] {
		if allSatisfy(g.dependedBy[p], visited) {
			out = append(out, p)
		}
	}
	return out
}

func allSatisfy(handles []Handle, pred func(Handle) bool) bool {
	if pred == nil {
		return true
	}
	for _, h := range handles {
		if !pred(h) {
			return false
		}
	}
	return true
}
