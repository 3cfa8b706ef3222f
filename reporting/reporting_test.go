package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/types"
)

func sampleGroup() *types.GroupResult {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	suite := types.GroupResult{
		GroupID: types.Identity{ID: "smoke", Version: "1.0.0"},
		Kind:    types.KindTestSuite,
		Status:  types.StatusFailed,
		Start:   start,
		End:     start.Add(90 * time.Second),
		Nodes: []types.NodeOutcome{
			{NodeID: "disk", CaseID: types.Identity{ID: "disk-check", Version: "1.2.0"}, Status: types.StatusPassed, RunIDs: []string{"r1"}, Attempts: 1},
			{NodeID: "net", CaseID: types.Identity{ID: "ping", Version: "1.0.0"}, Status: types.StatusFailed, RunIDs: []string{"r2", "r3"}, Attempts: 2},
		},
	}
	suite.Stats.Add(types.StatusPassed)
	suite.Stats.Add(types.StatusFailed)

	plan := &types.GroupResult{
		GroupID:  types.Identity{ID: "nightly", Version: "1.0.0"},
		Kind:     types.KindTestPlan,
		Status:   types.StatusFailed,
		Start:    start,
		End:      start.Add(2 * time.Minute),
		Children: []types.GroupResult{suite},
	}
	plan.Stats = suite.Stats
	return plan
}

func TestTreeFormatter(t *testing.T) {
	out := NewTreeFormatter(true, true).Format(sampleGroup())

	assert.Contains(t, out, "Plan nightly@1.0.0 - FAILED")
	assert.Contains(t, out, "Suite smoke@1.0.0 - FAILED")
	assert.Contains(t, out, "disk (disk-check@1.2.0) - PASSED")
	assert.Contains(t, out, "net (ping@1.0.0) - FAILED after 2 attempts [r2, r3]")
	assert.Contains(t, out, "2 total: 1 passed, 1 failed")
}

func TestTreeFormatterWithoutDetails(t *testing.T) {
	out := NewTreeFormatter(false, false).Format(sampleGroup())
	assert.NotContains(t, out, "total:")
	assert.NotContains(t, out, "[r2")
}

func TestTextSummarySink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewTextSummarySink(dir, nil).Write(sampleGroup()))

	matches, err := filepath.Glob(filepath.Join(dir, "plan-nightly_1.0.0-*.txt"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Plan summary")
	assert.Contains(t, string(data), "smoke@1.0.0")
}

func TestJSONSummarySink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewJSONSummarySink(dir, nil).Write(sampleGroup()))

	matches, err := filepath.Glob(filepath.Join(dir, "plan-nightly_1.0.0-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	var got types.GroupResult
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "nightly@1.0.0", got.GroupID.String())
	require.Len(t, got.Children, 1)
	assert.Len(t, got.Children[0].Nodes, 2)
}
