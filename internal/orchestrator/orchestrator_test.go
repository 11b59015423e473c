package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjdv/decompose/internal/config"
	"github.com/kjdv/decompose/internal/errs"
	"github.com/kjdv/decompose/internal/graph"
	"github.com/kjdv/decompose/internal/outputbus"
	"github.com/kjdv/decompose/internal/procmgr"
)

func runSystem(t *testing.T, sys *config.System, timeout time.Duration) (*Orchestrator, error) {
	t.Helper()
	g, err := graph.From(sys)
	if err != nil {
		t.Fatalf("graph.From: %v", err)
	}
	mgr := procmgr.New(zap.NewNop(), outputbus.NullFactory{}, sys.TerminateTimeoutDuration(), 0, false)
	o := New(zap.NewNop(), g, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(ctx) }()

	select {
	case err := <-runErr:
		return o, err
	case <-time.After(timeout + time.Second):
		t.Fatal("Run did not return in time")
		return o, nil
	}
}

func TestStartOrderRespectsDependencies(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "order.log")

	sys := &config.System{Program: []config.Program{
		{
			Name: "a",
			Exec: "/bin/sh",
			Args: []string{"-c", fmt.Sprintf("echo A >> %s; sleep 30", logFile)},
		},
		{
			Name:    "b",
			Exec:    "/bin/sh",
			Args:    []string{"-c", fmt.Sprintf("echo B >> %s; sleep 30", logFile)},
			Depends: []string{"a"},
		},
	}}

	g, err := graph.From(sys)
	if err != nil {
		t.Fatalf("graph.From: %v", err)
	}
	mgr := procmgr.New(zap.NewNop(), outputbus.NullFactory{}, sys.TerminateTimeoutDuration(), 0, false)
	o := New(zap.NewNop(), g, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(ctx) }()

	// Give both processes time to start and write their lines.
	time.Sleep(300 * time.Millisecond)
	o.Shutdown()

	select {
	case <-runErr:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not shut down")
	}

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(content) != "A\nB\n" {
		t.Fatalf("order log = %q, want %q", content, "A\nB\n")
	}
}

func TestCriticalChildUnexpectedExitTriggersShutdown(t *testing.T) {
	sys := &config.System{Program: []config.Program{
		{
			Name:     "critical",
			Exec:     "/bin/sh",
			Args:     []string{"-c", "exit 7"},
			Critical: true,
		},
	}}

	_, err := runSystem(t, sys, 5*time.Second)
	var childErr *errs.ChildFailed
	if !errors.As(err, &childErr) {
		t.Fatalf("Run error = %v, want *errs.ChildFailed", err)
	}
	if childErr.ExitCode != 7 {
		t.Fatalf("ExitCode = %d, want 7", childErr.ExitCode)
	}
}

func TestCriticalChildCleanExitTriggersShutdownWithoutError(t *testing.T) {
	// spec.md §4.5/§8 scenario 6: a critical child stopping always starts
	// teardown, but the run only fails if that exit was non-success. A
	// clean (exit 0) critical stop must still tear the keepalive sibling
	// down and return nil.
	sys := &config.System{Program: []config.Program{
		{Name: "critical", Exec: "/bin/sh", Args: []string{"-c", "exit 0"}, Critical: true},
		{Name: "keepalive", Exec: "/bin/sleep", Args: []string{"30"}},
	}}

	_, err := runSystem(t, sys, 5*time.Second)
	if err != nil {
		t.Fatalf("Run error = %v, want nil (clean critical exit)", err)
	}
}

func TestNonCriticalExitDoesNotTriggerShutdown(t *testing.T) {
	sys := &config.System{Program: []config.Program{
		{Name: "quiet", Exec: "/bin/sh", Args: []string{"-c", "exit 1"}},
		{Name: "keepalive", Exec: "/bin/sleep", Args: []string{"1"}},
	}}

	_, err := runSystem(t, sys, 5*time.Second)
	if err != nil {
		t.Fatalf("Run error = %v, want nil (non-critical exit should not abort)", err)
	}
}

func TestNaturalCompletionClosesDoneCleanly(t *testing.T) {
	sys := &config.System{Program: []config.Program{
		{Name: "done", Exec: "/bin/true", Ready: config.ReadySpec{Kind: config.ReadyCompleted}},
	}}

	o, err := runSystem(t, sys, 5*time.Second)
	if err != nil {
		t.Fatalf("Run error = %v, want nil", err)
	}
	select {
	case <-o.Done():
	default:
		t.Fatal("Done() not closed after Run returned")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	sys := &config.System{Program: []config.Program{
		{Name: "a", Exec: "/bin/sleep", Args: []string{"30"}},
	}}
	g, err := graph.From(sys)
	if err != nil {
		t.Fatalf("graph.From: %v", err)
	}
	mgr := procmgr.New(zap.NewNop(), outputbus.NullFactory{}, sys.TerminateTimeoutDuration(), 0, false)
	o := New(zap.NewNop(), g, mgr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- o.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	o.Shutdown()
	o.Shutdown()
	o.Shutdown()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("repeated Shutdown calls should not hang teardown")
	}
}
