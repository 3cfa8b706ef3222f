// Package environ computes the effective process environment for a run by
// layering the OS environment, plan and suite environments, and run-time
// overrides with defined precedence.
package environ

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/runweave/runweave/types"
)

// BaseSource supplies the baseline environment map. The OS read sits
// behind this interface so tests can substitute a fixed baseline.
type BaseSource interface {
	BaseEnvironment() map[string]string
}

// OSSource reads the whole process environment as the baseline.
type OSSource struct{}

func (OSSource) BaseEnvironment() map[string]string {
	return parseEnviron(os.Environ())
}

// parseEnviron converts KEY=VALUE pairs into a map. Entries with an empty
// name are dropped: the Windows process block keeps cmd bookkeeping
// entries of the form "=C:=C:\path", and those are not addressable as
// variables. The empty-key validation in Resolve still applies to every
// explicit layer.
func parseEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// Fixed is a BaseSource with a static map, for tests.
type Fixed map[string]string

func (f Fixed) BaseEnvironment() map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Layer is one named environment source in precedence order.
type Layer struct {
	Name string
	Vars map[string]string
}

// Scope names the run scope, which fixes the layer precedence.
type Scope string

const (
	ScopeCase           Scope = "case"
	ScopeSuite          Scope = "suite"
	ScopeSuiteUnderPlan Scope = "suiteUnderPlan"
	ScopePlan           Scope = "plan"
)

// Resolver layers environment maps over an injected baseline.
type Resolver struct {
	base BaseSource
}

// NewResolver returns a resolver over the given baseline source. A nil
// source falls back to the OS environment.
func NewResolver(base BaseSource) *Resolver {
	if base == nil {
		base = OSSource{}
	}
	return &Resolver{base: base}
}

// Layers returns the ordered override layers (excluding the OS baseline)
// for the given scope, lowest precedence first.
func Layers(scope Scope, plan *types.PlanEnvironment, suite *types.SuiteEnvironment, override map[string]string) []Layer {
	var layers []Layer
	appendSuite := func() {
		if suite != nil {
			layers = append(layers, Layer{Name: "suite", Vars: suite.Env})
		}
	}
	appendPlan := func() {
		if plan != nil {
			layers = append(layers, Layer{Name: "plan", Vars: plan.Env})
		}
	}

	switch scope {
	case ScopeCase:
	case ScopeSuite:
		appendSuite()
	case ScopeSuiteUnderPlan:
		appendPlan()
		appendSuite()
	case ScopePlan:
		appendSuite()
		appendPlan()
	}
	layers = append(layers, Layer{Name: "override", Vars: override})
	return layers
}

// Resolve merges the baseline with the given layers, later layers winning
// on key collision. Keys compare case-insensitively, matching host OS
// semantics, and keep the last writer's casing. An empty or
// whitespace-only key in any layer is a validation error, never silently
// dropped.
func (r *Resolver) Resolve(layers ...Layer) (map[string]string, error) {
	type entry struct {
		key   string
		value string
	}
	merged := make(map[string]entry)

	apply := func(name string, vars map[string]string) error {
		for key, value := range vars {
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("environment layer %q contains an empty variable name", name)
			}
			merged[strings.ToLower(key)] = entry{key: key, value: value}
		}
		return nil
	}

	if err := apply("os", r.base.BaseEnvironment()); err != nil {
		return nil, err
	}
	for _, layer := range layers {
		if err := apply(layer.Name, layer.Vars); err != nil {
			return nil, err
		}
	}

	out := make(map[string]string, len(merged))
	for _, e := range merged {
		out[e.key] = e.value
	}
	return out, nil
}

// Format renders a resolved environment as sorted KEY=VALUE pairs for
// exec.Cmd.
func Format(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out
}
