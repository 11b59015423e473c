// Package outputbus fans a child process's stdout/stderr lines out to
// multiple subscribers: ready probes watching for a pattern, and sinks that
// persist or forward the lines. A slow subscriber never blocks the
// producer; lines queued for it past its buffer are dropped.
package outputbus

import "sync"

// subscriberBuffer bounds how many unread lines a subscriber may lag by
// before lines are dropped for it. Matches the orchestrator-wide queue
// capacity used elsewhere (spec's bounded-queue guidance).
const subscriberBuffer = 100

// Bus is a single child's broadcast point for one stream (stdout or
// stderr). Zero value is not usable; use New.
type Bus struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
	done bool
}

// New returns a ready Bus.
func New() *Bus {
	return &Bus{subs: make(map[chan string]struct{})}
}

// Subscribe registers a new receiver and returns its channel. The channel
// is closed when Close is called. Subscribe must be called before
// Publish/Close begin running on another goroutine for the subscriber not
// to miss lines — callers that need every line from spawn onward (ready
// probes) subscribe before the producer pump starts.
func (b *Bus) Subscribe() <-chan string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan string, subscriberBuffer)
	if b.done {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber early (used by probes that stop caring
// once satisfied, so they don't keep a full buffer alive for no reason).
func (b *Bus) Unsubscribe(ch <-chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.subs {
		if c == ch {
			delete(b.subs, c)
			close(c)
			return
		}
	}
}

// Publish fans line out to every current subscriber. A subscriber whose
// buffer is full has the line dropped for it rather than blocking the
// producer — this is a live broadcast, not a reliable queue.
func (b *Bus) Publish(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close closes every subscriber channel and marks the bus done; further
// Subscribe calls get an already-closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan string]struct{})
}
