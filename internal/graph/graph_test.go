package graph

import (
	"testing"

	"github.com/kjdv/decompose/internal/config"
)

func sys(programs ...config.Program) *config.System {
	return &config.System{Program: programs}
}

func prog(name string, depends ...string) config.Program {
	return config.Program{Name: name, Exec: "/bin/true", Depends: depends}
}

func TestFromUnknownDependency(t *testing.T) {
	_, err := From(sys(prog("a", "b")))
	if err == nil {
		t.Fatal("expected error for unknown dependency target")
	}
}

func TestRootsAndLeaves(t *testing.T) {
	g, err := From(sys(prog("a"), prog("b", "a"), prog("c", "a")))
	if err != nil {
		t.Fatalf("From: %v", err)
	}

	roots := g.Roots()
	if len(roots) != 1 || g.Node(roots[0]).Name != "a" {
		t.Fatalf("Roots() = %v, want [a]", names(g, roots))
	}

	leaves := g.Leaves()
	if got := names(g, leaves); !sameSet(got, []string{"b", "c"}) {
		t.Fatalf("Leaves() = %v, want [b c]", got)
	}
}

func TestForwardUnlocksOnlyWhenAllDepsSatisfy(t *testing.T) {
	// d depends on both a and b; c depends only on a.
	g, err := From(sys(prog("a"), prog("b"), prog("c", "a"), prog("d", "a", "b")))
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	a, _ := g.Lookup("a")
	b, _ := g.Lookup("b")

	satisfied := map[Handle]bool{a: true}
	pred := func(h Handle) bool { return satisfied[h] }

	got := names(g, g.Forward(a, pred))
	if !sameSet(got, []string{"c"}) {
		t.Fatalf("Forward(a) with only a satisfied = %v, want [c] (d needs b too)", got)
	}

	satisfied[b] = true
	got = names(g, g.Forward(b, pred))
	if !sameSet(got, []string{"d"}) {
		t.Fatalf("Forward(b) once both satisfied = %v, want [d]", got)
	}
}

func TestBackwardUnlocksOnlyWhenAllDependeesSatisfy(t *testing.T) {
	// both b and c depend on a; backward(b) should not free a until c is
	// also inactive.
	g, err := From(sys(prog("a"), prog("b", "a"), prog("c", "a")))
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	b, _ := g.Lookup("b")
	c, _ := g.Lookup("c")

	inactive := map[Handle]bool{b: true}
	pred := func(h Handle) bool { return inactive[h] }

	if got := g.Backward(b, pred); len(got) != 0 {
		t.Fatalf("Backward(b) with c still active = %v, want none", names(g, got))
	}

	inactive[c] = true
	got := names(g, g.Backward(c, pred))
	if !sameSet(got, []string{"a"}) {
		t.Fatalf("Backward(c) once both inactive = %v, want [a]", got)
	}
}

func TestCycleRejectedByValidate(t *testing.T) {
	s := sys(prog("root"), prog("a", "b"), prog("b", "a"))
	if err := config.Validate(s); err == nil {
		t.Fatal("expected cycle to be rejected")
	}
}

func names(g *Graph, handles []Handle) []string {
	out := make([]string, len(handles))
	for i, h := range handles {
		out[i] = g.Node(h).Name
	}
	return out
}

func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]bool, len(got))
	for _, s := range got {
		seen[s] = true
	}
	for _, s := range want {
		if !seen[s] {
			return false
		}
	}
	return true
}
