// Package orchestrator implements the top-level state machine: it starts
// programs in dependency order, unblocks each dependent once its
// dependencies report ready, and tears the whole tree down — in reverse
// order — on shutdown, on a critical child's unexpected exit, on any
// lifecycle error, or on natural completion of every child.
//
// Grounded on original_source/src/executionlist.rs's pending/running/ready
// bookkeeping and is_startable check, and on
// original_source/src/process.rs's single select-loop shape, realized here
// as a single goroutine driven by Go channels per spec.md's concurrency
// model.
package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjdv/decompose/internal/errs"
	"github.com/kjdv/decompose/internal/graph"
	"github.com/kjdv/decompose/internal/procmgr"
)

// Orchestrator drives one System from start to shutdown.
type Orchestrator struct {
	log   *zap.Logger
	graph *graph.Graph
	mgr   *procmgr.Manager

	// Command channel for external requests (currently just Shutdown,
	// sent by the signal handler or a caller).
	shutdownCh chan struct{}

	mu sync.Mutex

	pending  map[graph.Handle]bool // not yet asked to start
	starting map[graph.Handle]bool // Start sent, awaiting Started/Err
	running  map[graph.Handle]bool // Started received
	stopping map[graph.Handle]bool // Stop sent, awaiting Stopped

	shuttingDown bool
	exitErr      error

	done chan struct{}
}

// New constructs an Orchestrator for g, driving children through mgr.
func New(log *zap.Logger, g *graph.Graph, mgr *procmgr.Manager) *Orchestrator {
	o := &Orchestrator{
		log:        log.Named("orchestrator"),
		graph:      g,
		mgr:        mgr,
		shutdownCh: make(chan struct{}, 1),
		pending:    make(map[graph.Handle]bool),
		starting:   make(map[graph.Handle]bool),
		running:    make(map[graph.Handle]bool),
		stopping:   make(map[graph.Handle]bool),
		done:       make(chan struct{}),
	}
	for _, h := range g.All() {
		o.pending[h] = true
	}
	return o
}

// Shutdown requests a graceful, idempotent teardown. Safe to call multiple
// times and from any goroutine.
func (o *Orchestrator) Shutdown() {
	select {
	case o.shutdownCh <- struct{}{}:
	default:
	}
}

// Done is closed once every child has stopped following a shutdown.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Err returns the error that triggered shutdown, or nil for a clean
// shutdown (explicit Shutdown() call, or natural completion, with no
// critical failure).
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.exitErr
}

// Run starts the dependency graph's roots and drives the event loop until
// every child has stopped. It returns the error that caused shutdown, or
// nil on a clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	go o.mgr.Run(ctx)

	o.mu.Lock()
	roots := o.graph.Roots()
	o.mu.Unlock()
	o.startAll(ctx, roots)

	if o.checkQuiescent() {
		close(o.done)
		return o.Err()
	}

	for {
		select {
		case ev := <-o.mgr.Events():
			o.handleEvent(ctx, ev)
		case <-o.shutdownCh:
			o.beginShutdown(nil)
		case <-ctx.Done():
			o.beginShutdown(ctx.Err())
		}

		if o.checkQuiescent() {
			close(o.done)
			return o.Err()
		}
	}
}

// checkQuiescent reports whether the run is over: either a shutdown is in
// progress and every child has finished stopping, or — per spec.md's
// natural-completion trigger — nothing is pending, starting, or running
// any more, in which case a shutdown is declared (idempotently) so the
// same finished check applies uniformly.
func (o *Orchestrator) checkQuiescent() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	idle := len(o.pending) == 0 && len(o.starting) == 0 && len(o.running) == 0
	if idle && !o.shuttingDown {
		o.shuttingDown = true
	}
	return o.shuttingDown && len(o.starting) == 0 && len(o.running) == 0 && len(o.stopping) == 0
}

// startAll dispatches Start commands for handles concurrently, matching
// the teacher's channel_summary.go fan-out-then-wait use of
// golang.org/x/sync/errgroup.
func (o *Orchestrator) startAll(ctx context.Context, handles []graph.Handle) {
	if len(handles) == 0 {
		return
	}
	o.mu.Lock()
	for _, h := range handles {
		delete(o.pending, h)
		o.starting[h] = true
	}
	o.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, h := range handles {
		h := h
		g.Go(func() error {
			p := o.graph.Node(h)
			o.mgr.Commands() <- procmgr.Command{Start: &procmgr.StartCmd{Handle: h, Program: p}}
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev procmgr.Event) {
	switch {
	case ev.Started:
		o.onStarted(ctx, ev.Handle)
	case ev.Stopped:
		o.onStopped(ev.Handle, ev.ExitCode)
	case ev.Err != nil:
		o.onErr(ev.Handle, ev.Err)
	}
}

// onStarted moves h from starting to running and unblocks every dependee
// of h whose own dependencies are now all either running or finished
// (neither pending nor still starting) — that is, graph.Forward(h, ...)
// per spec.md §4.1, which is the exact test the spec's "forward traversal"
// is defined to answer.
func (o *Orchestrator) onStarted(ctx context.Context, h graph.Handle) {
	o.mu.Lock()
	delete(o.starting, h)
	o.running[h] = true

	startable := o.graph.Forward(h, func(n graph.Handle) bool {
		return o.running[n] || (!o.pending[n] && !o.starting[n])
	})
	var toStart []graph.Handle
	for _, n := range startable {
		if o.pending[n] {
			toStart = append(toStart, n)
		}
	}
	shuttingDown := o.shuttingDown
	o.mu.Unlock()

	o.log.Info("program started", zap.String("program", o.graph.Node(h).Name))

	if shuttingDown {
		o.continueShutdown(h)
		return
	}
	o.startAll(ctx, toStart)
}

func (o *Orchestrator) onErr(h graph.Handle, err error) {
	name := o.graph.Node(h).Name
	o.log.Error("program failed to start", zap.String("program", name), zap.Error(err))

	o.mu.Lock()
	delete(o.starting, h)
	o.mu.Unlock()

	// Any lifecycle error — spawn failure, probe failure, start timeout —
	// forces a full shutdown, per spec.md §4.5's Error event rule. This is
	// unconditional: unlike a critical child's unexpected stop, it is not
	// gated on the failing program's critical flag.
	o.beginShutdown(err)
}

func (o *Orchestrator) onStopped(h graph.Handle, exitCode int) {
	name := o.graph.Node(h).Name
	critical := o.graph.Node(h).Critical

	o.mu.Lock()
	wasRunning := o.running[h]
	wasStopping := o.stopping[h]
	delete(o.running, h)
	delete(o.stopping, h)
	shuttingDown := o.shuttingDown
	o.mu.Unlock()

	if wasStopping || shuttingDown {
		o.log.Info("program stopped", zap.String("program", name))
		o.continueShutdown(h)
		return
	}

	if wasRunning {
		o.log.Warn("program exited unexpectedly", zap.String("program", name), zap.Int("exit_code", exitCode))
		if critical {
			// A critical child's unexpected stop always triggers shutdown,
			// successful or not — spec.md §4.5's "record first st into
			// exit_status" rule — but exit_status (and therefore the final
			// non-zero exit code) is only set when the exit was not a
			// success, per scenario 6's "iff task's status is non-success".
			var err error
			if exitCode != 0 {
				err = &errs.ChildFailed{Program: name, ExitCode: exitCode}
			}
			o.beginShutdown(err)
			o.continueShutdown(h)
		}
	}
}

// beginShutdown marks shutdown in progress (idempotently, first cause
// wins) and stops every leaf program currently active, per spec.md's
// "Shutdown: ... for every leaf emit Stop" rule.
func (o *Orchestrator) beginShutdown(err error) {
	o.mu.Lock()
	first := !o.shuttingDown
	if first {
		o.shuttingDown = true
		o.exitErr = err
	} else if o.exitErr == nil {
		o.exitErr = err
	}
	o.mu.Unlock()

	if !first {
		return
	}

	var toStop []graph.Handle
	o.mu.Lock()
	for _, h := range o.graph.Leaves() {
		if (o.running[h] || o.starting[h]) && !o.stopping[h] {
			o.stopping[h] = true
			toStop = append(toStop, h)
		}
	}
	o.mu.Unlock()
	o.sendStops(toStop)
}

// continueShutdown is called after h has stopped while a shutdown is in
// progress. It asks the graph for h's direct dependencies whose own
// dependees (including h) are now all inactive — graph.Backward(h, ...)
// per spec.md §4.1 — and stops whichever of those are still running.
func (o *Orchestrator) continueShutdown(h graph.Handle) {
	o.mu.Lock()
	candidates := o.graph.Backward(h, func(n graph.Handle) bool {
		return !o.running[n] && !o.starting[n]
	})
	var toStop []graph.Handle
	for _, p := range candidates {
		if (o.running[p] || o.starting[p]) && !o.stopping[p] {
			o.stopping[p] = true
			toStop = append(toStop, p)
		}
	}
	o.mu.Unlock()
	o.sendStops(toStop)
}

func (o *Orchestrator) sendStops(handles []graph.Handle) {
	for _, h := range handles {
		o.mgr.Commands() <- procmgr.Command{Stop: &procmgr.StopCmd{Handle: h}}
	}
}
