// Package binder converts untyped supplied values into typed, validated
// values against a test case's parameter definitions. The manifest is the
// single source of truth for the argument surface: undeclared names are
// rejected, never passed through.
package binder

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/runweave/runweave/types"
)

// BoundValue is one coerced parameter value. Value holds the shape keyed
// by the definition's declared type: string, int64, float64, bool,
// []string, []int64, or json.RawMessage for json parameters.
type BoundValue struct {
	Def      types.ParameterDefinition
	Value    any
	Supplied bool // false when the manifest default was used
}

// BindError reports why a specific run's supplied values were rejected.
// It is fatal to that run only and raised before any process is launched.
type BindError struct {
	Parameter string
	Type      types.ParamType
	Reason    string
}

func (e *BindError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("parameter %q (%s): %s", e.Parameter, e.Type, e.Reason)
	}
	return fmt.Sprintf("parameter %q: %s", e.Parameter, e.Reason)
}

// Bind validates supplied against definitions and returns the effective
// typed values. Definitions with defaults contribute values even when the
// caller supplied nothing; those are marked Supplied=false but still reach
// the script.
func Bind(definitions []types.ParameterDefinition, supplied map[string]any) (map[string]BoundValue, error) {
	declared := make(map[string]bool, len(definitions))
	for _, def := range definitions {
		declared[def.Name] = true
	}
	var undeclared []string
	for name := range supplied {
		if !declared[name] {
			undeclared = append(undeclared, name)
		}
	}
	if len(undeclared) > 0 {
		sort.Strings(undeclared)
		return nil, &BindError{
			Parameter: undeclared[0],
			Reason:    fmt.Sprintf("not declared by the manifest (undeclared: %s)", strings.Join(undeclared, ", ")),
		}
	}

	bound := make(map[string]BoundValue, len(definitions))
	for _, def := range definitions {
		raw, wasSupplied := supplied[def.Name]
		if !wasSupplied {
			if def.Default == nil {
				if def.Required {
					return nil, &BindError{Parameter: def.Name, Type: def.Type, Reason: "missing required parameter"}
				}
				continue
			}
			raw = def.Default
		}

		value, err := coerce(def, raw)
		if err != nil {
			return nil, err
		}
		bound[def.Name] = BoundValue{Def: def, Value: value, Supplied: wasSupplied}
	}
	return bound, nil
}

// Plain returns the bound values as a plain map for snapshots and result
// records.
func Plain(bound map[string]BoundValue) map[string]any {
	out := make(map[string]any, len(bound))
	for name, bv := range bound {
		out[name] = bv.Value
	}
	return out
}

// coerce converts raw into the shape declared by def and applies the
// definition's constraints. One conversion path per declared type.
func coerce(def types.ParameterDefinition, raw any) (any, error) {
	switch def.Type {
	case types.ParamString, types.ParamPath:
		s, err := toString(def, raw)
		if err != nil {
			return nil, err
		}
		if err := checkPattern(def, s); err != nil {
			return nil, err
		}
		return s, nil

	case types.ParamEnum:
		s, err := toString(def, raw)
		if err != nil {
			return nil, err
		}
		for _, allowed := range def.EnumValues {
			if s == allowed {
				return s, nil
			}
		}
		return nil, &BindError{
			Parameter: def.Name, Type: def.Type,
			Reason: fmt.Sprintf("value %q is not one of [%s]", s, strings.Join(def.EnumValues, ", ")),
		}

	case types.ParamInt:
		n, err := toInt(def, raw)
		if err != nil {
			return nil, err
		}
		if err := checkBounds(def, float64(n)); err != nil {
			return nil, err
		}
		return n, nil

	case types.ParamDouble:
		f, err := toFloat(def, raw)
		if err != nil {
			return nil, err
		}
		if err := checkBounds(def, f); err != nil {
			return nil, err
		}
		return f, nil

	case types.ParamBool:
		return toBool(def, raw)

	case types.ParamJSON:
		return toJSON(def, raw)

	case types.ParamStringArray:
		items, err := toArray(def, raw)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(items))
		for i, item := range items {
			s, err := toString(def, item)
			if err != nil {
				return nil, &BindError{
					Parameter: def.Name, Type: def.Type,
					Reason: fmt.Sprintf("element %d is not a string", i),
				}
			}
			out[i] = s
		}
		return out, nil

	case types.ParamIntArray:
		items, err := toArray(def, raw)
		if err != nil {
			return nil, err
		}
		out := make([]int64, len(items))
		for i, item := range items {
			n, err := toInt(def, item)
			if err != nil {
				return nil, &BindError{
					Parameter: def.Name, Type: def.Type,
					Reason: fmt.Sprintf("element %d is not an integer", i),
				}
			}
			out[i] = n
		}
		return out, nil
	}

	return nil, &BindError{
		Parameter: def.Name, Type: def.Type,
		Reason: "unrecognized parameter type",
	}
}

func toString(def types.ParameterDefinition, raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", &BindError{
		Parameter: def.Name, Type: def.Type,
		Reason: fmt.Sprintf("expected a string, got %T", raw),
	}
}

func toInt(def types.ParameterDefinition, raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		// JSON numbers decode as float64; accept only whole values.
		if v != math.Trunc(v) {
			return 0, &BindError{
				Parameter: def.Name, Type: def.Type,
				Reason: fmt.Sprintf("value %v is not an integer", v),
			}
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return n, nil
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return 0, &BindError{
		Parameter: def.Name, Type: def.Type,
		Reason: fmt.Sprintf("cannot parse %v as an integer", raw),
	}
}

func toFloat(def types.ParameterDefinition, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f, nil
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, &BindError{
		Parameter: def.Name, Type: def.Type,
		Reason: fmt.Sprintf("cannot parse %v as a number", raw),
	}
}

// toBool accepts the common literal forms alongside native booleans.
func toBool(def types.ParameterDefinition, raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1", "$true":
			return true, nil
		case "false", "no", "off", "0", "$false":
			return false, nil
		}
	}
	return false, &BindError{
		Parameter: def.Name, Type: def.Type,
		Reason: fmt.Sprintf("cannot parse %v as a boolean", raw),
	}
}

// toJSON normalizes a json parameter to its compact raw encoding. A string
// value must itself be valid JSON.
func toJSON(def types.ParameterDefinition, raw any) (json.RawMessage, error) {
	if s, ok := raw.(string); ok {
		if !json.Valid([]byte(s)) {
			return nil, &BindError{
				Parameter: def.Name, Type: def.Type,
				Reason: "value is not valid JSON",
			}
		}
		return json.RawMessage(s), nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &BindError{
			Parameter: def.Name, Type: def.Type,
			Reason: fmt.Sprintf("value is not JSON-encodable: %v", err),
		}
	}
	return json.RawMessage(data), nil
}

// toArray accepts native slices or a JSON array encoded as a string.
func toArray(def types.ParameterDefinition, raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case string:
		var items []any
		if err := json.Unmarshal([]byte(v), &items); err == nil {
			return items, nil
		}
	}
	return nil, &BindError{
		Parameter: def.Name, Type: def.Type,
		Reason: fmt.Sprintf("expected an array, got %T", raw),
	}
}

func checkBounds(def types.ParameterDefinition, v float64) error {
	if def.Min != nil && v < *def.Min {
		return &BindError{
			Parameter: def.Name, Type: def.Type,
			Reason: fmt.Sprintf("value %v is below min %v", v, *def.Min),
		}
	}
	if def.Max != nil && v > *def.Max {
		return &BindError{
			Parameter: def.Name, Type: def.Type,
			Reason: fmt.Sprintf("value %v is above max %v", v, *def.Max),
		}
	}
	return nil
}

func checkPattern(def types.ParameterDefinition, s string) error {
	if def.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(def.Pattern)
	if err != nil {
		return &BindError{
			Parameter: def.Name, Type: def.Type,
			Reason: fmt.Sprintf("manifest pattern %q does not compile: %v", def.Pattern, err),
		}
	}
	if !re.MatchString(s) {
		return &BindError{
			Parameter: def.Name, Type: def.Type,
			Reason: fmt.Sprintf("value %q does not match pattern %q", s, def.Pattern),
		}
	}
	return nil
}
