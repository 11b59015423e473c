package procmgr

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjdv/decompose/internal/config"
	"github.com/kjdv/decompose/internal/outputbus"
)

// ExitStatus is the final disposition of a child process.
type ExitStatus struct {
	Exited   bool // false if killed by signal rather than exiting normally
	Code     int
	Signaled bool
	Signal   os.Signal
}

// child wraps one spawned OS process: its pipes, output buses, and
// termination sequencing. Grounded on the teacher's
// internal/infrastructure/processmgr/process.go: pipe setup, the
// SIGTERM-then-grace-then-SIGKILL Close() sequence guarded by sync.Once,
// and a supervise goroutine that waits the process and records its exit.
type child struct {
	name string
	log  *zap.Logger
	cmd  *exec.Cmd

	stdoutBus *outputbus.Bus
	stderrBus *outputbus.Bus
	sink      outputbus.Sink

	done     chan struct{}
	status   ExitStatus
	statusMu sync.Mutex

	closeOnce sync.Once
	stdinW    io.WriteCloser
	stdoutR   io.ReadCloser
	stderrR   io.ReadCloser
}

// spawn creates and starts the OS process for p. The caller (procmgr.start)
// handles p.Disabled before ever reaching here — spawn always starts a
// real OS process.
func spawn(log *zap.Logger, p config.Program, sink outputbus.Sink) (*child, error) {
	c := &child{
		name:      p.Name,
		log:       log,
		stdoutBus: outputbus.New(),
		stderrBus: outputbus.New(),
		sink:      sink,
		done:      make(chan struct{}),
	}

	execPath := p.Exec
	if abs, err := exec.LookPath(p.Exec); err == nil {
		execPath = abs
	}

	cwd := p.Cwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	} else if abs, err := filepath.Abs(cwd); err == nil {
		cwd = abs
	}

	cmd := exec.Command(execPath, p.Args...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), envSlice(p.Env)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, err
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.Stdin = stdinR

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		stdinR.Close()
		stdinW.Close()
		return nil, err
	}
	// The write ends belong to the child now; our copies would otherwise
	// keep the read end from seeing EOF once the child exits.
	stdoutW.Close()
	stderrW.Close()
	stdinR.Close()

	c.cmd = cmd
	c.stdinW = stdinW
	c.stdoutR = stdoutR
	c.stderrR = stderrR

	go c.supervise()

	return c, nil
}

// startPumps begins reading and broadcasting the child's stdout/stderr. The
// caller must have finished subscribing every consumer that needs every line
// from spawn onward (in particular a Stdout/Stderr ready probe) before
// calling this, per the bus's subscribe-before-produce contract.
func (c *child) startPumps() {
	go c.pump(c.stdoutR, c.stdoutBus, c.sink.WriteStdout)
	go c.pump(c.stderrR, c.stderrBus, c.sink.WriteStderr)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// pump scans lines from r, publishing each to bus and persist. It must be
// started only after any probe that needs every line has already
// subscribed to bus (see internal/readysignal's subscribe-before-produce
// ordering requirement).
func (c *child) pump(r io.ReadCloser, bus *outputbus.Bus, persist func(string)) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		bus.Publish(line)
		persist(line)
	}
}

// supervise waits the process and records its exit status, then closes the
// output buses so subscribers (including in-flight probes) unblock.
func (c *child) supervise() {
	err := c.cmd.Wait()

	status := ExitStatus{Exited: true}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				if ws.Signaled() {
					status = ExitStatus{Signaled: true, Signal: ws.Signal()}
				} else {
					status = ExitStatus{Exited: true, Code: ws.ExitStatus()}
				}
			}
		}
	}

	c.statusMu.Lock()
	c.status = status
	c.statusMu.Unlock()

	c.stdoutBus.Close()
	c.stderrBus.Close()
	_ = c.sink.Close()
	close(c.done)
}

// Status returns the child's final exit status; callers must wait on Done
// first.
func (c *child) Status() ExitStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// Done is closed once the child has exited.
func (c *child) Done() <-chan struct{} { return c.done }

// Enter unblocks a Manual-probe child by writing a newline to its stdin,
// matching the teacher's process.go Enter().
func (c *child) Enter() error {
	if c.stdinW == nil {
		return nil
	}
	_, err := c.stdinW.Write([]byte("\n"))
	return err
}

// Close terminates the child: SIGTERM to its process group, then SIGKILL
// after timeout if it hasn't exited. Idempotent via sync.Once, matching
// the teacher's process.go Close(). Logs "terminated" for a clean
// SIGTERM-only stop or "killed" once SIGKILL was needed, per spec.md §7's
// lifecycle-logging contract.
func (c *child) Close(timeout time.Duration) {
	c.closeOnce.Do(func() {
		if c.cmd == nil || c.cmd.Process == nil || !c.isAlive() {
			return
		}
		pgid := -c.cmd.Process.Pid
		_ = syscall.Kill(pgid, syscall.SIGTERM)

		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-c.done:
			c.log.Info(c.name + " terminated")
		case <-timer.C:
			if c.isAlive() {
				_ = syscall.Kill(pgid, syscall.SIGKILL)
				<-c.done
				c.log.Info(c.name + " killed")
			} else {
				c.log.Info(c.name + " terminated")
			}
		}
	})
}

// isAlive reports whether the child is still running, via a non-blocking
// check of the done signal rather than a blocking wait — used both to skip
// signaling an already-exited child in Close and to decide whether the
// terminate-timeout grace period actually needed escalating to SIGKILL.
func (c *child) isAlive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}
