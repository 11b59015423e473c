// Package config defines the declarative program list decompose runs, and
// loads it from TOML, YAML, or JSON with shell-style environment variable
// substitution applied before parsing.
package config

import (
	"fmt"
	"time"
)

// System is the top-level document: the set of programs to run plus
// process-wide timeouts.
type System struct {
	Program []Program `toml:"program" yaml:"program" json:"program" validate:"dive"`

	// TerminateTimeout bounds how long a child gets between SIGTERM and
	// SIGKILL. Defaults to 1 second, matching the original project.
	TerminateTimeout *float64 `toml:"terminate_timeout,omitempty" yaml:"terminate_timeout,omitempty" json:"terminate_timeout,omitempty"`

	// StartTimeout, if set, bounds how long a program's ready probe may
	// take before the spawn is considered failed.
	StartTimeout *float64 `toml:"start_timeout,omitempty" yaml:"start_timeout,omitempty" json:"start_timeout,omitempty"`
}

// TerminateTimeoutDuration returns the configured terminate timeout, or the
// 1-second default.
func (s *System) TerminateTimeoutDuration() time.Duration {
	if s.TerminateTimeout == nil {
		return time.Second
	}
	return time.Duration(*s.TerminateTimeout * float64(time.Second))
}

// StartTimeoutDuration returns the configured start timeout, or false if
// none was set (meaning: wait indefinitely for readiness).
func (s *System) StartTimeoutDuration() (time.Duration, bool) {
	if s.StartTimeout == nil {
		return 0, false
	}
	return time.Duration(*s.StartTimeout * float64(time.Second)), true
}

// Program is one entry in the program list.
type Program struct {
	Name     string            `toml:"name" yaml:"name" json:"name" validate:"required"`
	Exec     string            `toml:"exec" yaml:"exec" json:"exec" validate:"required"`
	Args     []string          `toml:"args,omitempty" yaml:"args,omitempty" json:"args,omitempty"`
	Env      map[string]string `toml:"env,omitempty" yaml:"env,omitempty" json:"env,omitempty"`
	Cwd      string            `toml:"cwd,omitempty" yaml:"cwd,omitempty" json:"cwd,omitempty"`
	Ready    ReadySpec         `toml:"ready,omitempty" yaml:"ready,omitempty" json:"ready,omitempty"`
	Depends  []string          `toml:"depends,omitempty" yaml:"depends,omitempty" json:"depends,omitempty"`
	Critical bool              `toml:"critical,omitempty" yaml:"critical,omitempty" json:"critical,omitempty"`
	Disabled bool              `toml:"disabled,omitempty" yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// ReadySpec is a tagged union over the ready-signal variants a program can
// declare: either one of the bare strings "nothing"/"manual"/"completed",
// or an object naming exactly one of timer/port/stdout/stderr/healthcheck.
// Decoding is handled by the custom Unmarshal* methods in readyspec.go,
// since none of TOML/YAML/JSON natively support string-or-object fields.
// The zero value is the Nothing variant (vacuously ready as soon as
// spawned).
type ReadySpec struct {
	Kind ReadyKind

	Timer       *float64
	Port        *int
	Stdout      *string
	Stderr      *string
	Healthcheck *HealthcheckSpec
}

// ReadyKind identifies which ReadySpec variant is populated.
type ReadyKind int

const (
	ReadyNothing ReadyKind = iota
	ReadyManual
	ReadyTimer
	ReadyPort
	ReadyStdout
	ReadyStderr
	ReadyHealthcheck
	ReadyCompleted
)

// HealthcheckSpec is the Endpoint a Healthcheck probe polls.
type HealthcheckSpec struct {
	Port int    `toml:"port" yaml:"port" json:"port" validate:"required"`
	Path string `toml:"path,omitempty" yaml:"path,omitempty" json:"path,omitempty"`
	Host string `toml:"host,omitempty" yaml:"host,omitempty" json:"host,omitempty"`
}

// fromFields sets Kind by inspecting which object-form field is set; used
// by the Unmarshal* methods in readyspec.go once they've decoded the object
// form of the tag (as opposed to one of the bare-string variants).
func (r *ReadySpec) fromFields() error {
	set := 0
	for _, isSet := range []bool{r.Timer != nil, r.Port != nil, r.Stdout != nil, r.Stderr != nil, r.Healthcheck != nil} {
		if isSet {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("ready: object form must set exactly one of timer/port/stdout/stderr/healthcheck")
	}
	switch {
	case r.Timer != nil:
		r.Kind = ReadyTimer
	case r.Port != nil:
		r.Kind = ReadyPort
	case r.Stdout != nil:
		r.Kind = ReadyStdout
	case r.Stderr != nil:
		r.Kind = ReadyStderr
	case r.Healthcheck != nil:
		r.Kind = ReadyHealthcheck
	default:
		return fmt.Errorf("ready: object form must set exactly one of timer/port/stdout/stderr/healthcheck")
	}
	return nil
}

// fromString sets Kind from one of the bare-string ready variants.
func (r *ReadySpec) fromString(s string) error {
	switch s {
	case "nothing", "":
		r.Kind = ReadyNothing
	case "manual":
		r.Kind = ReadyManual
	case "completed":
		r.Kind = ReadyCompleted
	default:
		return fmt.Errorf("ready: unrecognized value %q (want nothing, manual, or completed)", s)
	}
	return nil
}
