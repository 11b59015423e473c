package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/kjdv/decompose/internal/errs"
	"github.com/kjdv/decompose/pkg/hostutil"
)

// Format is a config file's serialization.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
	FormatJSON
)

// LoadFile reads path, substitutes environment variables, parses it per its
// extension (falling back to TOML if the extension is unrecognized), and
// validates the result. The returned error is a *ConfigError or
// *ValidationError per the error kinds in internal/errs.
func LoadFile(path string) (*System, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Path: path, Err: err}
	}
	return LoadBytes(raw, formatFor(path))
}

// LoadBytes parses raw config bytes of the given format, after env
// substitution, and validates the result.
func LoadBytes(raw []byte, format Format) (*System, error) {
	expanded, err := Expand(string(raw), os.LookupEnv)
	if err != nil {
		return nil, &errs.ConfigError{Err: err}
	}

	sys, err := decode([]byte(expanded), format)
	if err != nil {
		return nil, &errs.ConfigError{Err: err}
	}

	if err := Validate(sys); err != nil {
		return nil, err
	}
	return sys, nil
}

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatTOML
	}
}

func decode(data []byte, format Format) (*System, error) {
	var sys System
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &sys)
	case FormatJSON:
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		err = dec.Decode(&sys)
	default:
		err = toml.Unmarshal(data, &sys)
	}
	if err != nil {
		return nil, err
	}
	return &sys, nil
}

var structValidator = validator.New()

// Validate checks struct-level field constraints (name/exec non-empty, a
// healthcheck's port set, ...) plus graph-topology invariants: unique
// program names, every depends target resolvable, no cycles, and at least
// one root (a program with no dependencies). Independent problems across
// different programs are collected and reported together, so a misconfigured
// file doesn't need one Validate/fix/retry cycle per mistake.
func Validate(sys *System) error {
	if err := structValidator.Struct(sys); err != nil {
		return &errs.ValidationError{Err: err}
	}

	var errsList error

	seen := make(map[string]bool, len(sys.Program))
	for _, p := range sys.Program {
		if seen[p.Name] {
			errsList = multierr.Append(errsList, fmt.Errorf("duplicate program name %q", p.Name))
			continue
		}
		seen[p.Name] = true
	}

	hasRoot := false
	for _, p := range sys.Program {
		for _, dep := range p.Depends {
			if !seen[dep] {
				errsList = multierr.Append(errsList, fmt.Errorf("program %q depends on unknown program %q", p.Name, dep))
			}
		}
		if len(p.Depends) == 0 {
			hasRoot = true
		}
		if p.Ready.Kind == ReadyHealthcheck && p.Ready.Healthcheck.Host != "" {
			if err := hostutil.ValidateHost(p.Ready.Healthcheck.Host); err != nil {
				errsList = multierr.Append(errsList, fmt.Errorf("program %q healthcheck: %w", p.Name, err))
			}
		}
	}
	if !hasRoot && len(sys.Program) > 0 {
		errsList = multierr.Append(errsList, fmt.Errorf("no valid entry point: every program has at least one dependency"))
	}

	if errsList != nil {
		return &errs.ValidationError{Err: errsList}
	}

	if err := detectCycle(sys); err != nil {
		return &errs.ValidationError{Err: err}
	}
	return nil
}

func detectCycle(sys *System) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	byName := make(map[string]Program, len(sys.Program))
	for _, p := range sys.Program {
		byName[p.Name] = p
	}
	color := make(map[string]int, len(sys.Program))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case gray:
			return fmt.Errorf("dependency cycle detected: %s -> %s", strings.Join(path, " -> "), name)
		case black:
			return nil
		}
		color[name] = gray
		for _, dep := range byName[name].Depends {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		return nil
	}

	for _, p := range sys.Program {
		if err := visit(p.Name, nil); err != nil {
			return err
		}
	}
	return nil
}
