package runner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/binder"
	"github.com/runweave/runweave/types"
)

func TestBuildArgsDeclarationOrder(t *testing.T) {
	defs := []types.ParameterDefinition{
		{Name: "Zeta", Type: types.ParamInt},
		{Name: "Alpha", Type: types.ParamString},
		{Name: "Unbound", Type: types.ParamString},
	}
	bound, err := binder.Bind(defs, map[string]any{"Zeta": 1, "Alpha": "x"})
	require.NoError(t, err)

	args := BuildArgs(defs, bound)
	// Manifest order, not alphabetical; unbound parameters are omitted.
	assert.Equal(t, []string{"-Zeta", "1", "-Alpha", "'x'"}, args)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"bool true", true, "$true"},
		{"bool false", false, "$false"},
		{"int", int64(42), "42"},
		{"double", 2.5, "2.5"},
		{"string", "plain", "'plain'"},
		{"string with quote", "it's", "'it''s'"},
		{"string array", []string{"a", "b's"}, "@('a', 'b''s')"},
		{"int array", []int64{1, 2, 3}, "@(1, 2, 3)"},
		{"json", json.RawMessage(`{"a":1}`), `'{"a":1}'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value))
		})
	}
}
