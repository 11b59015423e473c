package outputbus

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sink persists or forwards a child's output; it owns no lifecycle beyond
// Write/Close and never blocks on a slow downstream (the bus already
// handles backpressure by dropping for slow subscribers).
type Sink interface {
	WriteStdout(line string)
	WriteStderr(line string)
	Close() error
}

// NullSink discards everything written to it.
type NullSink struct{}

func (NullSink) WriteStdout(string) {}
func (NullSink) WriteStderr(string) {}
func (NullSink) Close() error       { return nil }

// InheritSink writes straight through to the orchestrator's own stdout and
// stderr, prefixed with the child's name so interleaved output stays
// attributable.
type InheritSink struct {
	Name string
}

func (s InheritSink) WriteStdout(line string) { fmt.Fprintf(os.Stdout, "[%s] => %s\n", s.Name, line) }
func (s InheritSink) WriteStderr(line string) { fmt.Fprintf(os.Stderr, "[%s] => %s\n", s.Name, line) }
func (InheritSink) Close() error              { return nil }

// FileSink writes a child's stdout and stderr to separate files inside a
// per-run directory, and is the sink a FileFactory produces. A write
// failure is logged and the line dropped rather than propagated, per
// spec.md §4.2's fail-open rule — a full disk must not stop the child.
type FileSink struct {
	name   string
	log    *zap.Logger
	stdout io.WriteCloser
	stderr io.WriteCloser
}

func (s *FileSink) WriteStdout(line string) {
	if _, err := fmt.Fprintln(s.stdout, line); err != nil {
		s.log.Warn("dropped stdout line", zap.String("program", s.name), zap.Error(err))
	}
}

func (s *FileSink) WriteStderr(line string) {
	if _, err := fmt.Fprintln(s.stderr, line); err != nil {
		s.log.Warn("dropped stderr line", zap.String("program", s.name), zap.Error(err))
	}
}

func (s *FileSink) Close() error {
	err1 := s.stdout.Close()
	err2 := s.stderr.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Factory builds Sinks according to one of three policies: Null (discard),
// Inherit (pass through to our own stdio), or Files (write under a root
// directory), matching the original project's OutputFactory trait.
type Factory interface {
	Sink(programName string) (Sink, error)
}

// NullFactory builds NullSinks.
type NullFactory struct{}

func (NullFactory) Sink(string) (Sink, error) { return NullSink{}, nil }

// InheritFactory builds InheritSinks.
type InheritFactory struct{}

func (InheritFactory) Sink(name string) (Sink, error) { return InheritSink{Name: name}, nil }

// FileFactory writes each program's output under
// <Root>/<ISO8601 local timestamp>.<pid>/<program>.{out,err}, and
// maintains a `latest` symlink in Root pointing at the current run's
// directory, following the original project's OutputFileFactory layout.
type FileFactory struct {
	Root string
	log  *zap.Logger
	dir  string
}

// NewFileFactory creates (or reuses, across a single run) the run directory
// under root and the `latest` symlink pointing to it. log is attached to
// every FileSink it builds, so a write failure can be reported without
// aborting the child that produced the line.
func NewFileFactory(root string, log *zap.Logger) (*FileFactory, error) {
	runDir := filepath.Join(root, fmt.Sprintf("%s.%d", time.Now().Format("2006-01-02T15:04:05"), os.Getpid()))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}

	// Rewrite the `latest` symlink atomically: create a new symlink under a
	// temp name and rename it over the old one, rather than remove-then-
	// symlink, so a concurrent reader never observes a missing link.
	latest := filepath.Join(root, "latest")
	tmp := filepath.Join(root, fmt.Sprintf(".latest.%d.tmp", os.Getpid()))
	_ = os.Remove(tmp)
	if err := os.Symlink(runDir, tmp); err == nil {
		_ = os.Rename(tmp, latest)
	}

	return &FileFactory{Root: root, log: log, dir: runDir}, nil
}

func (f *FileFactory) Sink(name string) (Sink, error) {
	stdout, err := os.Create(filepath.Join(f.dir, name+".out"))
	if err != nil {
		return nil, err
	}
	stderr, err := os.Create(filepath.Join(f.dir, name+".err"))
	if err != nil {
		stdout.Close()
		return nil, err
	}
	return &FileSink{name: name, log: f.log, stdout: stdout, stderr: stderr}, nil
}
