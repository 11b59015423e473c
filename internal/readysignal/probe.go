// Package readysignal implements the probes that tell the process manager
// when a started child has become ready: Nothing, Manual, Timer, Port,
// Stdout, Stderr, Healthcheck, and Completed.
package readysignal

import "context"

// Probe is polled (or awaited, for variants that block) until the child is
// ready. A Probe is constructed once per spawn and used for exactly one
// readiness decision.
type Probe interface {
	// Wait blocks until the child is ready, the context is canceled, or
	// the probe decides the child will never become ready (a non-nil,
	// non-context error).
	Wait(ctx context.Context) error
}

// Target is the subset of a running child a probe needs: its declared
// name (for log lines and errors), a way to subscribe to its stdout/stderr
// lines, and a way to learn its exit status for the Completed probe.
type Target struct {
	Name string

	// Subscribe returns a channel of output lines from the given stream
	// ("stdout" or "stderr"). The channel is closed when the child's
	// output bus closes (normally, on child exit). Callers that need every
	// line from spawn onward (see readysignal.NewStream) call this before
	// the child's output pump starts, so no lines are missed.
	Subscribe func(stream string) <-chan string

	// Dial attempts a TCP connection to host:port, per the Port probe.
	Dial func(ctx context.Context, host string, port int) error

	// HTTPGet performs an HTTP GET against the given URL and reports
	// whether the response was a 2xx, per the Healthcheck probe.
	HTTPGet func(ctx context.Context, url string) (ok bool, err error)

	// Wait blocks until the child exits and returns its exit code, per
	// the Completed probe. It must be safe to call at most once.
	Wait func(ctx context.Context) (exitCode int, err error)

	// Prompt is invoked by the Manual probe after printing its prompt
	// line; it blocks until the operator presses enter. Defaults to
	// reading a line from stdin if nil.
	Prompt func() error
}
