package runner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/runweave/runweave/binder"
	"github.com/runweave/runweave/types"
)

// BuildArgs renders bound parameters as named CLI arguments for the
// script interpreter, in the manifest's declaration order. Values are
// formatted as interpreter-native literals: booleans as $true/$false,
// strings single-quoted with embedded quotes doubled, arrays as @(...)
// list literals.
func BuildArgs(definitions []types.ParameterDefinition, bound map[string]binder.BoundValue) []string {
	args := make([]string, 0, len(bound)*2)
	for _, def := range definitions {
		bv, ok := bound[def.Name]
		if !ok {
			continue
		}
		args = append(args, "-"+def.Name, FormatValue(bv.Value))
	}
	return args
}

// FormatValue renders one bound value as an interpreter-native literal.
func FormatValue(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "$true"
		}
		return "$false"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return quote(v)
	case []string:
		items := make([]string, len(v))
		for i, s := range v {
			items[i] = quote(s)
		}
		return "@(" + strings.Join(items, ", ") + ")"
	case []int64:
		items := make([]string, len(v))
		for i, n := range v {
			items[i] = strconv.FormatInt(n, 10)
		}
		return "@(" + strings.Join(items, ", ") + ")"
	case json.RawMessage:
		return quote(string(v))
	default:
		return quote(fmt.Sprintf("%v", v))
	}
}

// quote single-quotes a string, escaping embedded single quotes by
// doubling them. Single-quoted literals are inert in the interpreter, so
// no other escaping applies.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
