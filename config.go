package runweave

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/runweave/runweave/flags"
)

// DefaultInterpreter is the script interpreter used when none is configured.
const DefaultInterpreter = "pwsh"

// FileConfig is the optional YAML engine configuration file. Command-line
// flags and environment variables take precedence over values set here.
type FileConfig struct {
	CaseRoot    string `yaml:"caseRoot"`
	SuiteRoot   string `yaml:"suiteRoot"`
	PlanRoot    string `yaml:"planRoot"`
	RunsRoot    string `yaml:"runsRoot"`
	Interpreter string `yaml:"interpreter"`
	ModulePath  string `yaml:"modulePath"`
}

// Config holds the resolved engine configuration.
type Config struct {
	// CaseRoot is the directory tree scanned for test case manifests.
	CaseRoot string
	// SuiteRoot is the directory tree scanned for suite manifests.
	SuiteRoot string
	// PlanRoot is the directory tree scanned for plan manifests.
	PlanRoot string
	// RunsRoot is where per-run folders and the run index live.
	RunsRoot string
	// Interpreter is the script interpreter binary (name or path).
	Interpreter string
	// ModulePath is exported to scripts so they can import shared helpers.
	ModulePath string
	// EngineVersion is recorded in every result for traceability.
	EngineVersion string

	Log log.Logger
}

// NewConfig builds a Config from CLI flags, the environment and the optional
// engine config file.
func NewConfig(ctx *cli.Context, logger log.Logger, version string) (*Config, error) {
	var file FileConfig
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	pick := func(flagName, fileVal string) string {
		if v := ctx.String(flagName); v != "" {
			return v
		}
		return fileVal
	}

	cfg := &Config{
		CaseRoot:      pick(flags.CaseRoot.Name, file.CaseRoot),
		SuiteRoot:     pick(flags.SuiteRoot.Name, file.SuiteRoot),
		PlanRoot:      pick(flags.PlanRoot.Name, file.PlanRoot),
		RunsRoot:      pick(flags.RunsRoot.Name, file.RunsRoot),
		Interpreter:   pick(flags.Interpreter.Name, file.Interpreter),
		ModulePath:    pick(flags.ModulePath.Name, file.ModulePath),
		EngineVersion: version,
		Log:           logger,
	}
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	return cfg, cfg.finalize()
}

func (c *Config) finalize() error {
	if c.CaseRoot == "" {
		return fmt.Errorf("case root is required")
	}
	if c.RunsRoot == "" {
		return fmt.Errorf("runs root is required")
	}
	if c.Log == nil {
		c.Log = log.New()
	}
	for _, p := range []*string{&c.CaseRoot, &c.SuiteRoot, &c.PlanRoot, &c.RunsRoot, &c.ModulePath} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve path %q: %w", *p, err)
		}
		*p = abs
	}
	if info, err := os.Stat(c.CaseRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("case root %q is not a directory", c.CaseRoot)
	}
	return nil
}
