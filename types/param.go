package types

// ParamType is the declared type of a parameter definition. The binder
// keys its coercion off this value.
type ParamType string

const (
	ParamString      ParamType = "string"
	ParamInt         ParamType = "int"
	ParamDouble      ParamType = "double"
	ParamBool        ParamType = "bool"
	ParamEnum        ParamType = "enum"
	ParamPath        ParamType = "path"
	ParamJSON        ParamType = "json"
	ParamStringArray ParamType = "string[]"
	ParamIntArray    ParamType = "int[]"
)

// Valid reports whether t is one of the recognized parameter types.
func (t ParamType) Valid() bool {
	switch t {
	case ParamString, ParamInt, ParamDouble, ParamBool, ParamEnum,
		ParamPath, ParamJSON, ParamStringArray, ParamIntArray:
		return true
	}
	return false
}

// Numeric reports whether min/max bounds apply to t.
func (t ParamType) Numeric() bool {
	return t == ParamInt || t == ParamDouble
}

// Stringlike reports whether a pattern constraint applies to t.
func (t ParamType) Stringlike() bool {
	return t == ParamString || t == ParamPath
}

// ParameterDefinition declares one named argument of a test case. Names
// are unique within a manifest; enum parameters carry at least one value.
type ParameterDefinition struct {
	Name       string    `json:"name"`
	Type       ParamType `json:"type"`
	Required   bool      `json:"required,omitempty"`
	Default    any       `json:"default,omitempty"`
	Min        *float64  `json:"min,omitempty"`
	Max        *float64  `json:"max,omitempty"`
	EnumValues []string  `json:"enumValues,omitempty"`
	Pattern    string    `json:"pattern,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Help       string    `json:"help,omitempty"`
}
