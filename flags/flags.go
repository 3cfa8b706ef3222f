package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "RUNWEAVE"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to an optional engine config file (eg. 'runweave.yaml')",
	}
	CaseRoot = &cli.StringFlag{
		Name:    "case-root",
		Value:   "",
		EnvVars: prefixEnvVars("CASE_ROOT"),
		Usage:   "Directory tree to scan for test case manifests",
	}
	SuiteRoot = &cli.StringFlag{
		Name:    "suite-root",
		Value:   "",
		EnvVars: prefixEnvVars("SUITE_ROOT"),
		Usage:   "Directory tree to scan for suite manifests",
	}
	PlanRoot = &cli.StringFlag{
		Name:    "plan-root",
		Value:   "",
		EnvVars: prefixEnvVars("PLAN_ROOT"),
		Usage:   "Directory tree to scan for plan manifests",
	}
	RunsRoot = &cli.StringFlag{
		Name:    "runs-root",
		Value:   "",
		EnvVars: prefixEnvVars("RUNS_ROOT"),
		Usage:   "Directory where per-run folders and the run index are written",
	}
	Interpreter = &cli.StringFlag{
		Name:    "interpreter",
		Value:   "",
		EnvVars: prefixEnvVars("INTERPRETER"),
		Usage:   "Script interpreter binary to launch test scripts with (default 'pwsh')",
	}
	ModulePath = &cli.StringFlag{
		Name:    "module-path",
		Value:   "",
		EnvVars: prefixEnvVars("MODULE_PATH"),
		Usage:   "Path exported to scripts for importing shared helper modules",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Lowest log level that will be output (trace|debug|info|warn|error|crit)",
	}
	LogFile = &cli.StringFlag{
		Name:    "log-file",
		Value:   "",
		EnvVars: prefixEnvVars("LOG_FILE"),
		Usage:   "Mirror engine logs to this file as JSON, in addition to the terminal",
	}

	// Run command flags.
	TargetKind = &cli.StringFlag{
		Name:    "kind",
		Value:   "",
		EnvVars: prefixEnvVars("KIND"),
		Usage:   "Kind of target to run: 'case', 'suite' or 'plan'",
	}
	Target = &cli.StringFlag{
		Name:    "target",
		Value:   "",
		EnvVars: prefixEnvVars("TARGET"),
		Usage:   "Target reference to run (eg. 'disk-check@1.2.0' or 'nightly')",
	}
	RequestFile = &cli.StringFlag{
		Name:    "request",
		Value:   "",
		EnvVars: prefixEnvVars("REQUEST"),
		Usage:   "Path to a run request file supplying parameters and environment overrides",
	}
	Param = &cli.StringSliceFlag{
		Name:  "param",
		Usage: "Parameter override as name=value (repeatable)",
	}
	Env = &cli.StringSliceFlag{
		Name:  "env",
		Usage: "Environment override as KEY=VALUE (repeatable)",
	}

	// History command flags.
	HistoryTest = &cli.StringFlag{
		Name:  "test",
		Usage: "Restrict history to runs of the given test id",
	}
	HistoryLimit = &cli.IntFlag{
		Name:  "limit",
		Value: 50,
		Usage: "Maximum number of history entries to show",
	}
)

var requiredFlags = []cli.Flag{
	CaseRoot,
	RunsRoot,
}

var optionalFlags = []cli.Flag{
	ConfigFile,
	SuiteRoot,
	PlanRoot,
	Interpreter,
	ModulePath,
	LogLevel,
	LogFile,
}

// Flags contains the list of global configuration flags.
var Flags []cli.Flag

func init() {
	Flags = append(Flags, requiredFlags...)
	Flags = append(Flags, optionalFlags...)
}

// RunFlags are the flags accepted by the run command.
var RunFlags = []cli.Flag{
	TargetKind,
	Target,
	RequestFile,
	Param,
	Env,
}

// HistoryFlags are the flags accepted by the history command.
var HistoryFlags = []cli.Flag{
	HistoryTest,
	HistoryLimit,
}

// CheckRequired verifies that the required global settings were provided
// either as flags, environment variables or via the config file.
func CheckRequired(ctx *cli.Context) error {
	if ctx.String(ConfigFile.Name) != "" {
		// The config file may supply the required settings; NewConfig
		// validates the merged result.
		return nil
	}
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
