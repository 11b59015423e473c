package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBytesTOML(t *testing.T) {
	doc := `
terminate_timeout = 0.5

[[program]]
name = "server"
exec = "/bin/sleep"
args = ["60"]
ready = { port = 9090 }

[[program]]
name = "proxy"
exec = "/bin/sleep"
args = ["60"]
depends = ["server"]
critical = true
ready = "nothing"
`
	sys, err := LoadBytes([]byte(doc), FormatTOML)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(sys.Program) != 2 {
		t.Fatalf("got %d programs, want 2", len(sys.Program))
	}
	server := sys.Program[0]
	if server.Ready.Kind != ReadyPort || server.Ready.Port == nil || *server.Ready.Port != 9090 {
		t.Fatalf("server.Ready = %+v, want Port(9090)", server.Ready)
	}
	proxy := sys.Program[1]
	if proxy.Ready.Kind != ReadyNothing {
		t.Fatalf("proxy.Ready.Kind = %v, want ReadyNothing", proxy.Ready.Kind)
	}
	if !proxy.Critical {
		t.Fatal("proxy should be critical")
	}
	if got := sys.TerminateTimeoutDuration().Seconds(); got != 0.5 {
		t.Fatalf("TerminateTimeoutDuration = %v, want 0.5s", got)
	}
}

func TestLoadBytesYAML(t *testing.T) {
	doc := `
program:
  - name: a
    exec: /bin/true
    ready: completed
  - name: b
    exec: /bin/true
    depends: [a]
    ready:
      timer: 1.5
`
	sys, err := LoadBytes([]byte(doc), FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if sys.Program[0].Ready.Kind != ReadyCompleted {
		t.Fatalf("a.Ready.Kind = %v, want ReadyCompleted", sys.Program[0].Ready.Kind)
	}
	if sys.Program[1].Ready.Kind != ReadyTimer || *sys.Program[1].Ready.Timer != 1.5 {
		t.Fatalf("b.Ready = %+v, want Timer(1.5)", sys.Program[1].Ready)
	}
}

func TestLoadBytesJSON(t *testing.T) {
	doc := `{
		"program": [
			{"name": "a", "exec": "/bin/true", "ready": "manual"}
		]
	}`
	sys, err := LoadBytes([]byte(doc), FormatJSON)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if sys.Program[0].Ready.Kind != ReadyManual {
		t.Fatalf("a.Ready.Kind = %v, want ReadyManual", sys.Program[0].Ready.Kind)
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	sys := &System{Program: []Program{
		{Name: "a", Exec: "/bin/true"},
		{Name: "a", Exec: "/bin/true"},
	}}
	if err := Validate(sys); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
}

func TestValidateRejectsNoRoot(t *testing.T) {
	sys := &System{Program: []Program{
		{Name: "a", Exec: "/bin/true", Depends: []string{"b"}},
		{Name: "b", Exec: "/bin/true", Depends: []string{"a"}},
	}}
	if err := Validate(sys); err == nil {
		t.Fatal("expected missing-root config to be rejected")
	}
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	sys := &System{Program: []Program{{Name: "", Exec: ""}}}
	if err := Validate(sys); err == nil {
		t.Fatal("expected empty name/exec to be rejected")
	}
}

func TestLoadFileFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decompose.yaml")
	doc := "program:\n  - name: a\n    exec: /bin/true\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	sys, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(sys.Program) != 1 || sys.Program[0].Name != "a" {
		t.Fatalf("unexpected result: %+v", sys)
	}
}

func TestLoadFileAppliesEnvSubstitution(t *testing.T) {
	t.Setenv("DECOMPOSE_TEST_EXEC", "/bin/true")
	dir := t.TempDir()
	path := filepath.Join(dir, "decompose.toml")
	doc := "[[program]]\nname = \"a\"\nexec = \"$DECOMPOSE_TEST_EXEC\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	sys, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if sys.Program[0].Exec != "/bin/true" {
		t.Fatalf("Exec = %q, want /bin/true", sys.Program[0].Exec)
	}
}
