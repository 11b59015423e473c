// Package runtimeutil holds the small pieces of runtime glue the
// orchestrator needs that aren't part of any one module: turning OS
// signals into a single shutdown request.
//
// Grounded on original_source/src/tokio_utils.rs's wait_for_signal/
// with_timeout helpers and original_source/src/process.rs's top-level
// select over SIGINT/SIGTERM — realized with stdlib os/signal and context
// instead of a dedicated async runtime, since Go doesn't need one.
package runtimeutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WatchSignals calls onSignal once when the first SIGINT or SIGTERM is
// received. If ctx is canceled or the stop function is called first, the
// watcher exits without calling onSignal. It returns a stop function the
// caller should defer to release the signal notification.
func WatchSignals(ctx context.Context, onSignal func()) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			onSignal()
		case <-ctx.Done():
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}
