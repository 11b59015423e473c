package readysignal

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kjdv/decompose/internal/config"
)

// Build constructs the Probe a program's ReadySpec describes.
func Build(spec config.ReadySpec, target Target) (Probe, error) {
	switch spec.Kind {
	case config.ReadyNothing:
		return Nothing{}, nil
	case config.ReadyManual:
		return Manual{Target: target}, nil
	case config.ReadyTimer:
		return Timer{Duration: time.Duration(*spec.Timer * float64(time.Second))}, nil
	case config.ReadyPort:
		return Port{Target: target, Port: *spec.Port}, nil
	case config.ReadyStdout:
		re, err := regexp.Compile(*spec.Stdout)
		if err != nil {
			return nil, fmt.Errorf("readysignal: bad stdout regexp: %w", err)
		}
		return NewStream(target, "stdout", re), nil
	case config.ReadyStderr:
		re, err := regexp.Compile(*spec.Stderr)
		if err != nil {
			return nil, fmt.Errorf("readysignal: bad stderr regexp: %w", err)
		}
		return NewStream(target, "stderr", re), nil
	case config.ReadyHealthcheck:
		hc := spec.Healthcheck
		host := hc.Host
		if host == "" {
			host = "127.0.0.1"
		}
		path := hc.Path
		if path == "" {
			path = "/"
		}
		url := fmt.Sprintf("http://%s:%d%s", host, hc.Port, path)
		return Healthcheck{Target: target, URL: url}, nil
	case config.ReadyCompleted:
		return Completed{Target: target}, nil
	default:
		return nil, fmt.Errorf("readysignal: unknown ready kind %d", spec.Kind)
	}
}
