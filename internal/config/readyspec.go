package config

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// readySpecFields is the shared shape of ReadySpec's object form, decoded
// once per format and then copied into the ReadySpec itself. Exactly one
// field may be set; fromFields enforces that and resolves Kind.
type readySpecFields struct {
	Timer       *float64         `toml:"timer" yaml:"timer" json:"timer"`
	Port        *int             `toml:"port" yaml:"port" json:"port"`
	Stdout      *string          `toml:"stdout" yaml:"stdout" json:"stdout"`
	Stderr      *string          `toml:"stderr" yaml:"stderr" json:"stderr"`
	Healthcheck *HealthcheckSpec `toml:"healthcheck" yaml:"healthcheck" json:"healthcheck"`
}

func (r *ReadySpec) applyFields(f readySpecFields) error {
	r.Timer = f.Timer
	r.Port = f.Port
	r.Stdout = f.Stdout
	r.Stderr = f.Stderr
	r.Healthcheck = f.Healthcheck
	return r.fromFields()
}

// UnmarshalJSON accepts either a bare string ("nothing"/"manual"/
// "completed") or an object naming one of timer/port/stdout/stderr/
// healthcheck, matching spec.md's `ready` schema.
func (r *ReadySpec) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return r.fromString(s)
	}

	var f readySpecFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("ready: %w", err)
	}
	return r.applyFields(f)
}

// UnmarshalYAML mirrors UnmarshalJSON for the YAML decoder.
func (r *ReadySpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		return r.fromString(s)
	}

	var f readySpecFields
	if err := value.Decode(&f); err != nil {
		return fmt.Errorf("ready: %w", err)
	}
	return r.applyFields(f)
}

// UnmarshalTOML implements go-toml/v2's Unmarshaler interface. Unlike
// encoding/json and yaml.v3, go-toml/v2 hands the Unmarshaler an
// already-decoded generic value rather than raw bytes/nodes.
func (r *ReadySpec) UnmarshalTOML(value interface{}) error {
	switch v := value.(type) {
	case string:
		return r.fromString(v)
	case map[string]interface{}:
		f, err := readySpecFieldsFromMap(v)
		if err != nil {
			return err
		}
		return r.applyFields(f)
	default:
		return fmt.Errorf("ready: unsupported TOML value %T", value)
	}
}

func readySpecFieldsFromMap(m map[string]interface{}) (readySpecFields, error) {
	var f readySpecFields
	for k, v := range m {
		switch k {
		case "timer":
			n, err := toFloat(v)
			if err != nil {
				return f, fmt.Errorf("ready.timer: %w", err)
			}
			f.Timer = &n
		case "port":
			n, err := toInt(v)
			if err != nil {
				return f, fmt.Errorf("ready.port: %w", err)
			}
			f.Port = &n
		case "stdout":
			s, ok := v.(string)
			if !ok {
				return f, fmt.Errorf("ready.stdout: expected string")
			}
			f.Stdout = &s
		case "stderr":
			s, ok := v.(string)
			if !ok {
				return f, fmt.Errorf("ready.stderr: expected string")
			}
			f.Stderr = &s
		case "healthcheck":
			hm, ok := v.(map[string]interface{})
			if !ok {
				return f, fmt.Errorf("ready.healthcheck: expected table")
			}
			hc := &HealthcheckSpec{}
			if p, ok := hm["port"]; ok {
				n, err := toInt(p)
				if err != nil {
					return f, fmt.Errorf("ready.healthcheck.port: %w", err)
				}
				hc.Port = n
			}
			if p, ok := hm["path"].(string); ok {
				hc.Path = p
			}
			if h, ok := hm["host"].(string); ok {
				hc.Host = h
			}
			f.Healthcheck = hc
		default:
			return f, fmt.Errorf("ready: unrecognized field %q", k)
		}
	}
	return f, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
