package discovery

import (
	"fmt"
	"strings"
)

// ViolationCode is a stable, machine-readable discovery error code.
type ViolationCode string

const (
	CodeManifestInvalid    ViolationCode = "ManifestInvalid"
	CodeUnsupportedSchema  ViolationCode = "UnsupportedSchema"
	CodeMissingIdentity    ViolationCode = "MissingIdentity"
	CodeDuplicateIdentity  ViolationCode = "DuplicateIdentity"
	CodeUnknownParamType   ViolationCode = "UnknownParamType"
	CodeDuplicateParam     ViolationCode = "DuplicateParam"
	CodeEmptyEnumValues    ViolationCode = "EmptyEnumValues"
	CodeInvalidPrivilege   ViolationCode = "InvalidPrivilege"
	CodeDuplicateNodeID    ViolationCode = "DuplicateNodeID"
	CodeRefNotFound        ViolationCode = "RefNotFound"
	CodeRefOutOfRoot       ViolationCode = "RefOutOfRoot"
	CodeUnknownInputParam  ViolationCode = "UnknownInputParam"
	CodeInvalidControls    ViolationCode = "InvalidControls"
	CodePlanEnvInvalidKey  ViolationCode = "PlanEnvInvalidKey"
	CodeSuiteRefNotFound   ViolationCode = "SuiteRefNotFound"
	CodeSuiteRefNonUnique  ViolationCode = "SuiteRefNonUnique"
)

// Violation describes one structural problem found during discovery.
type Violation struct {
	Code ViolationCode `json:"code"`
	// Path is the offending manifest file.
	Path string `json:"path"`
	// Conflicts lists other files involved, e.g. the twin of a duplicate
	// identity or the candidates of a non-unique suite reference.
	Conflicts []string `json:"conflicts,omitempty"`
	// Reason is a human-readable explanation.
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	if len(v.Conflicts) > 0 {
		return fmt.Sprintf("%s: %s (%s; conflicts: %s)",
			v.Code, v.Reason, v.Path, strings.Join(v.Conflicts, ", "))
	}
	return fmt.Sprintf("%s: %s (%s)", v.Code, v.Reason, v.Path)
}

// DiscoveryError carries every violation found in one discovery pass.
// Any non-empty violation set is a hard stop before execution.
type DiscoveryError struct {
	Violations []Violation
}

func (e *DiscoveryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "manifest discovery found %d violation(s):", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}
	return b.String()
}

// HasCode reports whether any violation carries the given code.
func (e *DiscoveryError) HasCode(code ViolationCode) bool {
	for _, v := range e.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}
