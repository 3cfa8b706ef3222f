package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	runweave "github.com/runweave/runweave"
	"github.com/runweave/runweave/exitcodes"
	"github.com/runweave/runweave/flags"
	"github.com/runweave/runweave/logging"
	"github.com/runweave/runweave/service"
	"github.com/runweave/runweave/types"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "runweave"
	app.Usage = "Local test orchestration engine"
	app.Description = "runweave discovers test manifests, binds parameters and runs test scripts with full run-folder auditing"
	app.Flags = flags.Flags
	app.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "Run a test case, suite or plan",
			Flags:  flags.RunFlags,
			Action: runAction,
		},
		{
			Name:   "list",
			Usage:  "List discovered cases, suites and plans",
			Action: listAction,
		},
		{
			Name:   "history",
			Usage:  "Show past runs from the run index",
			Flags:  flags.HistoryFlags,
			Action: historyAction,
		},
	}
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if runweave.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to set up open telemetry", "message", err)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// setupEngine builds the configured engine, running discovery up front.
func setupEngine(ctx *cli.Context) (*runweave.Engine, log.Logger, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, nil, cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}
	logger, err := setupLogging(ctx)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}
	cfg, err := runweave.NewConfig(ctx, logger, Version)
	if err != nil {
		return nil, nil, runweave.NewRuntimeError(err)
	}
	engine, err := runweave.New(ctx.Context, cfg)
	if err != nil {
		return nil, nil, runweave.NewRuntimeError(err)
	}
	return engine, logger, nil
}

func setupLogging(ctx *cli.Context) (log.Logger, error) {
	level, err := parseLogLevel(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return nil, err
	}
	var handler slog.Handler = log.NewTerminalHandlerWithLevel(os.Stderr, level, true)
	if path := ctx.String(flags.LogFile.Name); path != "" {
		tee, _, err := logging.NewFileTee(handler, path)
		if err != nil {
			return nil, err
		}
		handler = tee
	}
	logger := log.NewLogger(handler)
	log.SetDefault(logger)
	return logger, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func runAction(ctx *cli.Context) error {
	engine, logger, err := setupEngine(ctx)
	if err != nil {
		return err
	}
	req, err := buildRunRequest(ctx)
	if err != nil {
		return runweave.NewRuntimeError(err)
	}
	logger.Info("Running target", "kind", req.Kind, "target", req.Target.String())

	outcome, err := engine.Run(ctx.Context, req)
	if err != nil {
		return runweave.NewRuntimeError(err)
	}
	runweave.PrintOutcome(outcome)

	switch outcome.Status() {
	case types.StatusPassed, types.StatusSkipped:
		return nil
	case types.StatusFailed:
		return runweave.NewTestFailureError(fmt.Sprintf("target %s failed", req.Target))
	default:
		return runweave.NewRuntimeError(fmt.Errorf("target %s finished with status %s", req.Target, outcome.Status()))
	}
}

func listAction(ctx *cli.Context) error {
	engine, _, err := setupEngine(ctx)
	if err != nil {
		return err
	}
	runweave.PrintManifestList(engine.Index())
	return nil
}

func historyAction(ctx *cli.Context) error {
	engine, _, err := setupEngine(ctx)
	if err != nil {
		return err
	}
	entries, err := engine.Store().RunIndex().Scan()
	if err != nil {
		return runweave.NewRuntimeError(err)
	}
	if test := ctx.String(flags.HistoryTest.Name); test != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.TestID == test || strings.HasPrefix(e.TestID, test+"@") {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit := ctx.Int(flags.HistoryLimit.Name); limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	runweave.PrintHistory(entries)
	return nil
}

// buildRunRequest merges the optional request file with command-line
// overrides; flags win on conflict.
func buildRunRequest(ctx *cli.Context) (types.RunRequest, error) {
	var req types.RunRequest
	if path := ctx.String(flags.RequestFile.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return req, fmt.Errorf("failed to read request file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse request file %q: %w", path, err)
		}
	}
	if kind := ctx.String(flags.TargetKind.Name); kind != "" {
		req.Kind = parseTargetKind(kind)
	}
	if target := ctx.String(flags.Target.Name); target != "" {
		req.Target = parseIdentity(target)
	}
	for _, kv := range ctx.StringSlice(flags.Param.Name) {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return req, fmt.Errorf("invalid --param %q, expected name=value", kv)
		}
		if req.Parameters == nil {
			req.Parameters = map[string]any{}
		}
		req.Parameters[name] = value
	}
	for _, kv := range ctx.StringSlice(flags.Env.Name) {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return req, fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
		}
		if req.Env == nil {
			req.Env = map[string]string{}
		}
		req.Env[key] = value
	}
	if !req.Kind.Valid() {
		return req, fmt.Errorf("target kind %q is not one of case, suite, plan", ctx.String(flags.TargetKind.Name))
	}
	if req.Target.ID == "" {
		return req, fmt.Errorf("a run target is required")
	}
	return req, nil
}

func parseTargetKind(s string) types.TargetKind {
	switch strings.ToLower(s) {
	case "case", "testcase":
		return types.TargetTestCase
	case "suite":
		return types.TargetSuite
	case "plan":
		return types.TargetPlan
	default:
		return types.TargetKind(s)
	}
}

func parseIdentity(ref string) types.Identity {
	id, version, _ := strings.Cut(ref, "@")
	return types.Identity{ID: id, Version: version}
}
