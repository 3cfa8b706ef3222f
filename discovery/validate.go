package discovery

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/runweave/runweave/types"
)

// validateCase checks per-file invariants of a test-case manifest.
func validateCase(m *types.TestCaseManifest) []Violation {
	var violations []Violation

	if m.ID == "" || m.Version == "" {
		violations = append(violations, Violation{
			Code:   CodeMissingIdentity,
			Path:   m.Path,
			Reason: "manifest must declare both id and version",
		})
	}
	if !m.Privilege.Valid() {
		violations = append(violations, Violation{
			Code:   CodeInvalidPrivilege,
			Path:   m.Path,
			Reason: fmt.Sprintf("privilege %q is not one of User, AdminPreferred, AdminRequired", m.Privilege),
		})
	}

	seen := make(map[string]bool)
	for _, def := range m.Parameters {
		if seen[def.Name] {
			violations = append(violations, Violation{
				Code:   CodeDuplicateParam,
				Path:   m.Path,
				Reason: fmt.Sprintf("parameter %q declared more than once", def.Name),
			})
		}
		seen[def.Name] = true

		if !def.Type.Valid() {
			violations = append(violations, Violation{
				Code:   CodeUnknownParamType,
				Path:   m.Path,
				Reason: fmt.Sprintf("parameter %q has unrecognized type %q", def.Name, def.Type),
			})
		}
		if def.Type == types.ParamEnum && len(def.EnumValues) == 0 {
			violations = append(violations, Violation{
				Code:   CodeEmptyEnumValues,
				Path:   m.Path,
				Reason: fmt.Sprintf("enum parameter %q carries no enumValues", def.Name),
			})
		}
	}

	return violations
}

// validateSuiteLocal checks invariants that need no cross references.
func validateSuiteLocal(m *types.TestSuiteManifest) []Violation {
	var violations []Violation

	if m.ID == "" || m.Version == "" {
		violations = append(violations, Violation{
			Code:   CodeMissingIdentity,
			Path:   m.Path,
			Reason: "manifest must declare both id and version",
		})
	}

	seen := make(map[string]bool)
	for _, node := range m.Nodes {
		if node.NodeID == "" {
			violations = append(violations, Violation{
				Code:   CodeDuplicateNodeID,
				Path:   m.Path,
				Reason: "node with empty nodeId",
			})
			continue
		}
		if seen[node.NodeID] {
			violations = append(violations, Violation{
				Code:   CodeDuplicateNodeID,
				Path:   m.Path,
				Reason: fmt.Sprintf("nodeId %q declared more than once", node.NodeID),
			})
		}
		seen[node.NodeID] = true
	}

	c := m.Controls
	if c.Repeat < 0 || c.MaxParallel < 0 || c.RetryOnError < 0 {
		violations = append(violations, Violation{
			Code:   CodeInvalidControls,
			Path:   m.Path,
			Reason: "controls repeat, maxParallel and retryOnError must not be negative",
		})
	}
	switch c.TimeoutPolicy {
	case "", types.TimeoutPolicyCase:
	case types.TimeoutPolicySuite:
		if c.SuiteTimeoutSec <= 0 {
			violations = append(violations, Violation{
				Code:   CodeInvalidControls,
				Path:   m.Path,
				Reason: "timeoutPolicy \"suite\" requires a positive suiteTimeoutSec",
			})
		}
	default:
		violations = append(violations, Violation{
			Code:   CodeInvalidControls,
			Path:   m.Path,
			Reason: fmt.Sprintf("unknown timeoutPolicy %q", c.TimeoutPolicy),
		})
	}

	return violations
}

// validatePlanLocal checks the env-only invariant against the raw JSON,
// since unknown keys would otherwise vanish during decoding.
func validatePlanLocal(m *types.TestPlanManifest, raw []byte) []Violation {
	var violations []Violation

	if m.ID == "" || m.Version == "" {
		violations = append(violations, Violation{
			Code:   CodeMissingIdentity,
			Path:   m.Path,
			Reason: "manifest must declare both id and version",
		})
	}

	var shape struct {
		Environment map[string]json.RawMessage `json:"environment"`
	}
	if err := json.Unmarshal(raw, &shape); err == nil {
		for key := range shape.Environment {
			if key != "env" {
				violations = append(violations, Violation{
					Code:   CodePlanEnvInvalidKey,
					Path:   m.Path,
					Reason: fmt.Sprintf("plan environment carries key %q; only \"env\" is allowed", key),
				})
			}
		}
	}

	return violations
}

// validateGraph enforces the cross-reference invariants once every
// manifest has been loaded.
func validateGraph(ix *Index) []Violation {
	var violations []Violation

	for _, suite := range ix.Suites {
		for _, node := range suite.Nodes {
			target, v := resolveNodeRef(ix, suite, node)
			if v != nil {
				violations = append(violations, *v)
				continue
			}
			for name := range node.Inputs {
				if _, ok := target.Parameter(name); !ok {
					violations = append(violations, Violation{
						Code:      CodeUnknownInputParam,
						Path:      suite.Path,
						Conflicts: []string{target.Path},
						Reason: fmt.Sprintf("node %q overrides parameter %q, which case %s does not declare",
							node.NodeID, name, target.Identity),
					})
				}
			}
		}
	}

	for _, plan := range ix.Plans {
		for _, ref := range plan.Suites {
			if _, err := ix.Suite(ref); err != nil {
				code := CodeSuiteRefNotFound
				var conflicts []string
				id, _, versioned := strings.Cut(ref, "@")
				if !versioned && len(ix.suitesByID[id]) > 1 {
					code = CodeSuiteRefNonUnique
					for _, s := range ix.suitesByID[id] {
						conflicts = append(conflicts, s.Path)
					}
				}
				violations = append(violations, Violation{
					Code:      code,
					Path:      plan.Path,
					Conflicts: conflicts,
					Reason:    err.Error(),
				})
			}
		}
	}

	return violations
}

// resolveNodeRef resolves a node's case reference and classifies failures.
func resolveNodeRef(ix *Index, suite *types.TestSuiteManifest, node types.TestCaseNode) (*types.TestCaseManifest, *Violation) {
	target, err := resolveCaseRef(ix, ix.caseRoot, node.Ref)
	if err != nil {
		code := CodeRefNotFound
		if errIsOutOfRoot(err) {
			code = CodeRefOutOfRoot
		}
		return nil, &Violation{
			Code:   code,
			Path:   suite.Path,
			Reason: fmt.Sprintf("node %q: %v", node.NodeID, err),
		}
	}
	return target, nil
}

type outOfRootError struct{ ref, root string }

func (e *outOfRootError) Error() string {
	return fmt.Sprintf("ref %q resolves outside the case root %s", e.ref, e.root)
}

func errIsOutOfRoot(err error) bool {
	_, ok := err.(*outOfRootError)
	return ok
}

// resolveCaseRef resolves a path-like case reference against the case
// root. The reference may name the case directory or its manifest file.
// A reference escaping the root, e.g. via parent-directory traversal, is
// rejected.
func resolveCaseRef(ix *Index, root, ref string) (*types.TestCaseManifest, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty case reference")
	}

	resolved := ref
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, &outOfRootError{ref: ref, root: root}
	}

	dir := resolved
	if filepath.Base(resolved) == types.CaseManifestFilename {
		dir = filepath.Dir(resolved)
	}
	if m, ok := ix.CaseByDir(dir); ok {
		return m, nil
	}
	return nil, fmt.Errorf("ref %q does not resolve to a discovered test case", ref)
}
