package readysignal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/kjdv/decompose/internal/errs"
)

// Nothing is ready the instant it is spawned.
type Nothing struct{}

func (Nothing) Wait(ctx context.Context) error { return nil }

// Manual prints a prompt and blocks until the operator presses enter,
// mirroring the original project's exact wording.
type Manual struct {
	Target Target
}

func (m Manual) Wait(ctx context.Context) error {
	fmt.Printf("Manually waiting for %s, press enter\n", m.Target.Name)
	prompt := m.Target.Prompt
	if prompt == nil {
		prompt = func() error {
			_, err := bufio.NewReader(os.Stdin).ReadString('\n')
			return err
		}
	}
	done := make(chan error, 1)
	go func() { done <- prompt() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Timer is ready once d has elapsed since the probe started waiting.
type Timer struct {
	Duration time.Duration
	// Now defaults to time.Now. Wait does not read the clock through it; the
	// wait always runs on a real time.Timer.
	Now func() time.Time
}

func (t Timer) Wait(ctx context.Context) error {
	now := t.Now
	if now == nil {
		now = time.Now
	}
	timer := time.NewTimer(t.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Port is ready once a TCP connection to host:port succeeds.
type Port struct {
	Target Target
	Host   string
	Port   int
}

func (p Port) Wait(ctx context.Context) error {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if err := p.Target.Dial(ctx, host, p.Port); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stdout/Stderr are ready once a line matching a regular expression has
// been seen on the corresponding stream. lines is subscribed eagerly at
// construction (see NewStream), not lazily on first Wait, so the
// subscription is in place before the child's output pump starts
// publishing — a probe that subscribed only inside Wait could lose every
// line written between spawn and the first scheduling of its goroutine.
type Stream struct {
	Target Target
	Stream string // "stdout" or "stderr"
	Regexp *regexp.Regexp
	lines  <-chan string
}

// NewStream builds a Stream probe and subscribes it to its stream
// immediately, before the caller starts the child's output pump. If target
// has no Subscribe function set, subscription is deferred to Wait instead.
func NewStream(target Target, stream string, re *regexp.Regexp) Stream {
	s := Stream{Target: target, Stream: stream, Regexp: re}
	if target.Subscribe != nil {
		s.lines = target.Subscribe(stream)
	}
	return s
}

func (s Stream) Wait(ctx context.Context) error {
	lines := s.lines
	if lines == nil {
		lines = s.Target.Subscribe(s.Stream)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return &errs.ProbeError{Program: s.Target.Name, Err: fmt.Errorf("%s closed before matching %q", s.Stream, s.Regexp.String())}
			}
			if s.Regexp.MatchString(line) {
				return nil
			}
		}
	}
}

// Healthcheck is ready once an HTTP GET against the endpoint returns 2xx.
type Healthcheck struct {
	Target Target
	URL    string
}

func (h Healthcheck) Wait(ctx context.Context) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if ok, err := h.Target.HTTPGet(ctx, h.URL); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Completed waits for the child to exit and is ready only if it exited
// successfully (code 0); any other outcome is a probe failure, not a
// separate crash event, matching the original project's behavior.
type Completed struct {
	Target Target
}

func (c Completed) Wait(ctx context.Context) error {
	code, err := c.Target.Wait(ctx)
	if err != nil {
		return &errs.ProbeError{Program: c.Target.Name, Err: err}
	}
	if code != 0 {
		return &errs.ProbeError{Program: c.Target.Name, Err: fmt.Errorf("completed with non-zero exit code %d", code)}
	}
	return nil
}
