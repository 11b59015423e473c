// Package procmgr spawns and supervises child OS processes on behalf of
// the orchestrator: one child per program, each carrying its own ready
// probe and output bus. Grounded on the teacher's
// internal/infrastructure/processmgr package (command/event driven
// coordination of many children) and cross-checked against
// original_source/src/process.rs for the Start/Stop/Started/Stopped/Err
// event shape.
package procmgr

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjdv/decompose/internal/config"
	"github.com/kjdv/decompose/internal/errs"
	"github.com/kjdv/decompose/internal/graph"
	"github.com/kjdv/decompose/internal/outputbus"
	"github.com/kjdv/decompose/internal/readysignal"
)

// Command is something the orchestrator asks the manager to do.
type Command struct {
	Start *StartCmd
	Stop  *StopCmd
}

type StartCmd struct {
	Handle  graph.Handle
	Program config.Program
}

type StopCmd struct {
	Handle graph.Handle
}

// Event is something the manager reports back to the orchestrator.
type Event struct {
	Handle   graph.Handle
	Started  bool
	Stopped  bool
	Err      error
	ExitCode int
}

// Manager runs one child per started program and multiplexes their
// lifecycles onto a single event channel the orchestrator selects on,
// matching spec.md's single-threaded-cooperative concurrency model.
type Manager struct {
	log     *zap.Logger
	factory outputbus.Factory

	terminateTimeout time.Duration
	startTimeout     time.Duration
	hasStartTimeout  bool

	commands chan Command
	events   chan Event

	childrenMu sync.Mutex
	children   map[graph.Handle]*child
}

// New constructs a Manager. factory determines where child output goes;
// terminateTimeout and startTimeout come from the System's configured
// values (or their defaults).
func New(log *zap.Logger, factory outputbus.Factory, terminateTimeout, startTimeout time.Duration, hasStartTimeout bool) *Manager {
	return &Manager{
		log:              log.Named("procmgr"),
		factory:          factory,
		terminateTimeout: terminateTimeout,
		startTimeout:     startTimeout,
		hasStartTimeout:  hasStartTimeout,
		commands:         make(chan Command, 100),
		events:           make(chan Event, 100),
		children:         make(map[graph.Handle]*child),
	}
}

// Commands returns the channel the orchestrator sends Start/Stop requests
// on.
func (m *Manager) Commands() chan<- Command { return m.commands }

// Events returns the channel Started/Stopped/Err events arrive on.
func (m *Manager) Events() <-chan Event { return m.events }

// Run drives the command loop until ctx is canceled. It is meant to run in
// its own goroutine for the orchestrator's lifetime.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.commands:
			switch {
			case cmd.Start != nil:
				go m.start(ctx, cmd.Start.Handle, cmd.Start.Program)
			case cmd.Stop != nil:
				go m.stop(cmd.Stop.Handle)
			}
		}
	}
}

func (m *Manager) start(ctx context.Context, h graph.Handle, p config.Program) {
	log := m.log.With(zap.String("program", p.Name))

	// Disabled programs never touch the OS: no sink, no process, no ready
	// probe — their ready state is vacuously true regardless of what
	// Ready variant the config declares, per spec.md §4.4 step 1.
	if p.Disabled {
		m.emit(Event{Handle: h, Started: true})
		m.emit(Event{Handle: h, Stopped: true})
		return
	}

	sink, err := m.factory.Sink(p.Name)
	if err != nil {
		m.emit(Event{Handle: h, Err: &errs.SpawnError{Program: p.Name, Err: err}})
		return
	}

	c, err := spawn(log, p, sink)
	if err != nil {
		m.emit(Event{Handle: h, Err: &errs.SpawnError{Program: p.Name, Err: err}})
		return
	}

	target := readysignal.Target{
		Name: p.Name,
		Subscribe: func(stream string) <-chan string {
			if stream == "stderr" {
				return c.stderrBus.Subscribe()
			}
			return c.stdoutBus.Subscribe()
		},
		Dial: func(ctx context.Context, host string, port int) error {
			d := net.Dialer{Timeout: time.Second}
			conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err == nil {
				conn.Close()
			}
			return err
		},
		HTTPGet: func(ctx context.Context, url string) (bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return false, err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return false, err
			}
			defer resp.Body.Close()
			return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
		},
		Wait: func(ctx context.Context) (int, error) {
			select {
			case <-c.Done():
				if status := c.Status(); status.Signaled {
					return -1, nil
				}
				return c.Status().Code, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		},
		Prompt: func() error {
			if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
				return err
			}
			return c.Enter()
		},
	}

	probe, err := readysignal.Build(p.Ready, target)
	if err != nil {
		c.Close(m.terminateTimeout)
		m.emit(Event{Handle: h, Err: &errs.SpawnError{Program: p.Name, Err: err}})
		return
	}

	// A Stdout/Stderr probe subscribes to its bus inside Build (see
	// readysignal.NewStream), so the subscription already exists by this
	// point; only now is it safe to start the pumps that publish to it.
	c.startPumps()

	// start_timeout bounds every probe except Manual and Timer, per
	// spec.md §4.3: an operator-gated wait and a fixed sleep aren't
	// "waiting for readiness" in the sense the timeout is meant to guard.
	exempt := p.Ready.Kind == config.ReadyManual || p.Ready.Kind == config.ReadyTimer
	waitCtx := ctx
	var cancel context.CancelFunc
	if m.hasStartTimeout && !exempt {
		waitCtx, cancel = context.WithTimeout(ctx, m.startTimeout)
		defer cancel()
	}

	if err := probe.Wait(waitCtx); err != nil {
		c.Close(m.terminateTimeout)
		if waitCtx.Err() != nil {
			m.emit(Event{Handle: h, Err: &errs.TimeoutError{Program: p.Name}})
		} else {
			m.emit(Event{Handle: h, Err: err})
		}
		return
	}

	log.Info(p.Name + " ready")

	m.childrenMu.Lock()
	m.children[h] = c
	m.childrenMu.Unlock()
	m.emit(Event{Handle: h, Started: true})

	go m.watch(h, c)
}

// watch reports a child's eventual exit once it's running as a Stopped
// event. The event is the same whether the exit followed stop() or was
// unexpected; the orchestrator tells the two apart from its own record of
// which children it asked to stop.
func (m *Manager) watch(h graph.Handle, c *child) {
	<-c.Done()
	status := c.Status()
	exitCode := status.Code
	if status.Signaled {
		exitCode = -1
	}
	m.emit(Event{Handle: h, Stopped: true, ExitCode: exitCode})
}

func (m *Manager) stop(h graph.Handle) {
	m.childrenMu.Lock()
	c, ok := m.children[h]
	if ok {
		delete(m.children, h)
	}
	m.childrenMu.Unlock()
	if !ok {
		return
	}
	c.Close(m.terminateTimeout)
}

func (m *Manager) emit(ev Event) {
	m.events <- ev
}
