// Package types contains the manifest model and result records shared
// across the runweave engine.
package types

import (
	"fmt"
	"time"
)

// Manifest filename conventions. A test-case directory must contain both
// the manifest and its companion script to be discovered.
const (
	CaseManifestFilename  = "testcase.json"
	SuiteManifestFilename = "testsuite.json"
	PlanManifestFilename  = "testplan.json"
	CaseScriptFilename    = "run.ps1"
)

// DefaultCaseTimeout applies when a case manifest carries no timeoutSec.
const DefaultCaseTimeout = 300 * time.Second

// ManifestKind discriminates the three manifest flavors.
type ManifestKind string

const (
	KindTestCase  ManifestKind = "testCase"
	KindTestSuite ManifestKind = "testSuite"
	KindTestPlan  ManifestKind = "testPlan"
)

// Identity names a manifest entity. The pair is unique per kind within one
// manifest root.
type Identity struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`
}

// String returns the canonical id@version form.
func (i Identity) String() string {
	if i.Version == "" {
		return i.ID
	}
	return fmt.Sprintf("%s@%s", i.ID, i.Version)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Version == ""
}

// Privilege is the privilege requirement declared by a test case.
type Privilege string

const (
	PrivilegeUser           Privilege = "User"
	PrivilegeAdminPreferred Privilege = "AdminPreferred"
	PrivilegeAdminRequired  Privilege = "AdminRequired"
)

// Valid reports whether p is one of the recognized privilege levels.
// An empty value is treated as PrivilegeUser by callers.
func (p Privilege) Valid() bool {
	switch p {
	case "", PrivilegeUser, PrivilegeAdminPreferred, PrivilegeAdminRequired:
		return true
	}
	return false
}

// TestCaseManifest describes one executable test case. One file = one
// entity; immutable once loaded.
type TestCaseManifest struct {
	SchemaVersion string                `json:"schemaVersion"`
	Identity
	Name          string                `json:"name"`
	Category      string                `json:"category"`
	Description   string                `json:"description,omitempty"`
	Privilege     Privilege             `json:"privilege,omitempty"`
	TimeoutSec    int                   `json:"timeoutSec,omitempty"`
	Tags          []string              `json:"tags,omitempty"`
	Parameters    []ParameterDefinition `json:"parameters,omitempty"`

	// Path is the manifest file location, set by discovery.
	Path string `json:"-"`
	// ScriptPath is the companion script location, set by discovery.
	ScriptPath string `json:"-"`
}

// Timeout returns the effective wall-clock timeout for the case.
func (m *TestCaseManifest) Timeout() time.Duration {
	if m.TimeoutSec <= 0 {
		return DefaultCaseTimeout
	}
	return time.Duration(m.TimeoutSec) * time.Second
}

// Parameter returns the named parameter definition, if declared.
func (m *TestCaseManifest) Parameter(name string) (ParameterDefinition, bool) {
	for _, def := range m.Parameters {
		if def.Name == name {
			return def, true
		}
	}
	return ParameterDefinition{}, false
}

// TestCaseNode is a suite's reference to one test case plus its input
// overrides.
type TestCaseNode struct {
	NodeID string         `json:"nodeId"`
	Ref    string         `json:"ref"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// TimeoutPolicy selects where node timeouts come from.
type TimeoutPolicy string

const (
	// TimeoutPolicyCase uses each case manifest's own timeout (default).
	TimeoutPolicyCase TimeoutPolicy = "case"
	// TimeoutPolicySuite applies SuiteControls.SuiteTimeoutSec to every node.
	TimeoutPolicySuite TimeoutPolicy = "suite"
)

// SuiteControls govern suite scheduling behavior.
type SuiteControls struct {
	Repeat            int           `json:"repeat,omitempty"`
	MaxParallel       int           `json:"maxParallel,omitempty"`
	ContinueOnFailure bool          `json:"continueOnFailure,omitempty"`
	RetryOnError      int           `json:"retryOnError,omitempty"`
	TimeoutPolicy     TimeoutPolicy `json:"timeoutPolicy,omitempty"`
	SuiteTimeoutSec   int           `json:"suiteTimeoutSec,omitempty"`
}

// EffectiveRepeat clamps repeat to its documented minimum of 1.
func (c SuiteControls) EffectiveRepeat() int {
	if c.Repeat < 1 {
		return 1
	}
	return c.Repeat
}

// EffectiveMaxParallel clamps maxParallel to its documented minimum of 1.
func (c SuiteControls) EffectiveMaxParallel() int {
	if c.MaxParallel < 1 {
		return 1
	}
	return c.MaxParallel
}

// SuiteEnvironment carries suite-scoped execution environment settings.
type SuiteEnvironment struct {
	Env         map[string]string `json:"env,omitempty"`
	WorkingDir  string            `json:"workingDir,omitempty"`
	RunnerHints map[string]string `json:"runnerHints,omitempty"`
}

// TestSuiteManifest describes an ordered group of test-case nodes.
type TestSuiteManifest struct {
	SchemaVersion string           `json:"schemaVersion"`
	Identity
	Name          string           `json:"name,omitempty"`
	Description   string           `json:"description,omitempty"`
	Nodes         []TestCaseNode   `json:"nodes"`
	Controls      SuiteControls    `json:"controls,omitempty"`
	Environment   SuiteEnvironment `json:"environment,omitempty"`

	Path string `json:"-"`
}

// PlanEnvironment is restricted to an env-var map only. Any other key in
// the manifest's environment object is a validation error.
type PlanEnvironment struct {
	Env map[string]string `json:"env,omitempty"`
}

// TestPlanManifest describes an ordered group of suite references.
type TestPlanManifest struct {
	SchemaVersion string          `json:"schemaVersion"`
	Identity
	Name          string          `json:"name,omitempty"`
	Description   string          `json:"description,omitempty"`
	Suites        []string        `json:"suites"`
	Environment   PlanEnvironment `json:"environment,omitempty"`

	Path string `json:"-"`
}
