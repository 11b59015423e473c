package readysignal

import (
	"fmt"
	"testing"

	"github.com/kjdv/decompose/internal/config"
)

func TestBuildDispatchesOnKind(t *testing.T) {
	port := 8080
	stdoutRe := "^ready$"

	cases := []struct {
		name string
		spec config.ReadySpec
		want Probe
	}{
		{"nothing", config.ReadySpec{Kind: config.ReadyNothing}, Nothing{}},
		{"port", config.ReadySpec{Kind: config.ReadyPort, Port: &port}, Port{Port: port}},
		{"stdout", config.ReadySpec{Kind: config.ReadyStdout, Stdout: &stdoutRe}, Stream{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Build(tc.spec, Target{Name: "p"})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if p == nil {
				t.Fatal("Build returned nil probe")
			}
			if got, want := fmt.Sprintf("%T", p), fmt.Sprintf("%T", tc.want); got != want {
				t.Fatalf("Build returned %s, want %s", got, want)
			}
		})
	}
}

func TestBuildRejectsBadStdoutRegexp(t *testing.T) {
	bad := "(("
	_, err := Build(config.ReadySpec{Kind: config.ReadyStdout, Stdout: &bad}, Target{Name: "p"})
	if err == nil {
		t.Fatal("expected error for invalid regexp")
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	_, err := Build(config.ReadySpec{Kind: config.ReadyKind(99)}, Target{Name: "p"})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
