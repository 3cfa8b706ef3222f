package types

// TargetKind selects what a run request executes.
type TargetKind string

const (
	TargetTestCase TargetKind = "testCase"
	TargetSuite    TargetKind = "suite"
	TargetPlan     TargetKind = "plan"
)

// Valid reports whether k is a recognized target kind.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetTestCase, TargetSuite, TargetPlan:
		return true
	}
	return false
}

// RunRequest selects a run target and carries run-time overrides. It is
// the engine's single entry for one execution; the CLI builds it from
// flags or loads it from a YAML file.
type RunRequest struct {
	Kind   TargetKind `yaml:"kind"`
	Target Identity   `yaml:"target"`

	// Parameters override case defaults for standalone case runs and are
	// merged over node inputs for suite/plan runs.
	Parameters map[string]any `yaml:"parameters,omitempty"`

	// Env is the run-time override layer, highest precedence in the
	// effective environment.
	Env map[string]string `yaml:"env,omitempty"`
}
