// Command decompose starts a declarative tree of programs, waits on each
// one's readiness signal before unblocking its dependents, and tears the
// whole tree down in reverse order on SIGINT/SIGTERM or a critical child's
// failure.
//
// Grounded on the teacher's cmd/zmux-server/main.go for the zap dev/prod
// logger bootstrap; the CLI surface itself is built on
// github.com/urfave/cli/v2, adopted from the k3s-io-k3s example repo's
// go.mod rather than from the teacher (which has no CLI surface of its
// own — zmux-server is an HTTP daemon, decompose is a CLI).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kjdv/decompose/internal/config"
	"github.com/kjdv/decompose/internal/errs"
	"github.com/kjdv/decompose/internal/graph"
	"github.com/kjdv/decompose/internal/orchestrator"
	"github.com/kjdv/decompose/internal/outputbus"
	"github.com/kjdv/decompose/internal/procmgr"
	"github.com/kjdv/decompose/internal/runtimeutil"
	"github.com/kjdv/decompose/pkg/dotgraph"
	"github.com/kjdv/decompose/pkg/fmtt"
)

const (
	exitOK         = 0
	exitRuntime    = 1
	exitConfigBad  = 2
)

func main() {
	app := &cli.App{
		Name:      "decompose",
		Usage:     "start and supervise a declarative tree of programs",
		ArgsUsage: "<config-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Value: "inline", Usage: "child output sink: null, inline, or files"},
			&cli.StringFlag{Name: "outdir", Value: "./decompose-logs", Usage: "run directory root when --output=files"},
			&cli.StringFlag{Name: "log", Value: "info", Usage: "own log verbosity: off, error, warning, info, debug, or trace"},
			&cli.BoolFlag{Name: "dot", Usage: "print the dependency graph as Graphviz DOT and exit"},
			&cli.BoolFlag{Name: "debug", Usage: "development console logging and full error chains on failure"},
		},
		Action: run,
	}

	// app.Run handles cli.Exit-wrapped errors itself (urfave/cli calls
	// os.Exit with the code we attached via cli.Exit in run()). A plain
	// error getting here means something failed before run() could wrap
	// it, so it's treated as a runtime failure.
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntime)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one config file argument is required", exitConfigBad)
	}
	configPath := c.Args().Get(0)

	log, err := buildLogger(c.Bool("debug"), c.String("log"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to set up logging: %v", err), exitConfigBad)
	}
	defer log.Sync()

	// Every log line from this run carries the same run_id, the same way the
	// teacher's request_id middleware tagged every line of one HTTP request —
	// here the unit of correlation is a whole decompose invocation rather
	// than a single request.
	log = log.With(zap.String("run_id", uuid.NewString()))

	sys, err := config.LoadFile(configPath)
	if err != nil {
		if c.Bool("debug") {
			fmtt.PrintErrChainDebug(err)
		}
		return cli.Exit(err.Error(), exitFor(err))
	}

	g, err := graph.From(sys)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigBad)
	}

	if c.Bool("dot") {
		fmt.Print(dotgraph.Render(g))
		return nil
	}

	factory, err := buildFactory(c.String("output"), c.String("outdir"), log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to set up output sinks: %v", err), exitRuntime)
	}

	startTimeout, hasStartTimeout := sys.StartTimeoutDuration()
	mgr := procmgr.New(log, factory, sys.TerminateTimeoutDuration(), startTimeout, hasStartTimeout)

	orch := orchestrator.New(log, g, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopWatching := runtimeutil.WatchSignals(ctx, func() {
		log.Info("received shutdown signal")
		orch.Shutdown()
	})
	defer stopWatching()

	runErr := orch.Run(ctx)
	if runErr != nil {
		if c.Bool("debug") {
			fmtt.PrintErrChainDebug(runErr)
		}
		return cli.Exit(runErr.Error(), exitFor(runErr))
	}
	return nil
}

// buildLogger maps spec.md §6's --log verbosity contract
// (off|error|warning|info|debug|trace) onto a zap level. "trace" has no
// native zap level below Debug, so it maps to Debug too — decompose's own
// log lines don't distinguish a finer tier than zap ships with. "off"
// returns a no-op logger rather than a Config with an unreachable level,
// since zap has no true "disabled" level.
func buildLogger(debug bool, level string) (*zap.Logger, error) {
	if level == "off" {
		return zap.NewNop(), nil
	}

	zapLevel, err := levelFor(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func levelFor(level string) (zapcore.Level, error) {
	switch level {
	case "error":
		return zapcore.ErrorLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "debug", "trace":
		return zapcore.DebugLevel, nil
	default:
		return 0, fmt.Errorf("unrecognized --log level %q (want off, error, warning, info, debug, or trace)", level)
	}
}

func buildFactory(output, outdir string, log *zap.Logger) (outputbus.Factory, error) {
	switch output {
	case "null":
		return outputbus.NullFactory{}, nil
	case "files":
		return outputbus.NewFileFactory(outdir, log)
	case "inline", "":
		return outputbus.InheritFactory{}, nil
	default:
		return nil, fmt.Errorf("unrecognized --output %q (want null, inline, or files)", output)
	}
}

// exitFor maps an error to decompose's exit code contract: config/
// validation failures are 2, everything else is 1.
func exitFor(err error) int {
	var cfgErr *errs.ConfigError
	var valErr *errs.ValidationError
	if errors.As(err, &cfgErr) || errors.As(err, &valErr) {
		return exitConfigBad
	}
	return exitRuntime
}
