package outputbus

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestFileFactoryWritesSeparateStreamFiles(t *testing.T) {
	root := t.TempDir()
	f, err := NewFileFactory(root, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileFactory: %v", err)
	}

	sink, err := f.Sink("server")
	if err != nil {
		t.Fatalf("Sink: %v", err)
	}
	sink.WriteStdout("hello")
	sink.WriteStderr("oops")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(f.dir, "server.out"))
	if err != nil {
		t.Fatalf("read .out: %v", err)
	}
	if string(out) != "hello\n" {
		t.Fatalf("stdout file = %q, want %q", out, "hello\n")
	}

	errFile, err := os.ReadFile(filepath.Join(f.dir, "server.err"))
	if err != nil {
		t.Fatalf("read .err: %v", err)
	}
	if string(errFile) != "oops\n" {
		t.Fatalf("stderr file = %q, want %q", errFile, "oops\n")
	}
}

func TestFileFactoryMaintainsLatestSymlink(t *testing.T) {
	root := t.TempDir()
	f, err := NewFileFactory(root, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileFactory: %v", err)
	}

	latest := filepath.Join(root, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("Readlink(latest): %v", err)
	}
	if target != f.dir {
		t.Fatalf("latest -> %q, want %q", target, f.dir)
	}

	// A second run must rewrite latest, not fail because it exists.
	if _, err := NewFileFactory(root, zap.NewNop()); err != nil {
		t.Fatalf("second NewFileFactory: %v", err)
	}
}

func TestNullFactoryDiscards(t *testing.T) {
	sink, err := (NullFactory{}).Sink("anything")
	if err != nil {
		t.Fatalf("Sink: %v", err)
	}
	sink.WriteStdout("should vanish")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
