package runweave

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/environ"
	"github.com/runweave/runweave/runner"
	"github.com/runweave/runweave/types"
)

type engineFixture struct {
	cfg    *Config
	engine *Engine
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newEngineFixture builds a small corpus: two cases, a suite over both,
// and a plan over the suite. The interpreter is deliberately missing, so
// every execution classifies as a runner-sourced launch Error while still
// exercising folder allocation, snapshots and the index.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	base := t.TempDir()
	cases := filepath.Join(base, "cases")
	suites := filepath.Join(base, "suites")
	plans := filepath.Join(base, "plans")
	runs := filepath.Join(base, "runs")

	write(t, filepath.Join(cases, "disk-check", types.CaseManifestFilename), `{
		"schemaVersion": "1.0.0",
		"id": "disk-check", "version": "1.2.0",
		"name": "Disk Check", "category": "storage",
		"parameters": [{"name": "Threshold", "type": "int", "required": true}]
	}`)
	write(t, filepath.Join(cases, "disk-check", types.CaseScriptFilename), "exit 0\n")
	write(t, filepath.Join(cases, "ping", types.CaseManifestFilename), `{
		"schemaVersion": "1.0.0",
		"id": "ping", "version": "1.0.0",
		"name": "Ping", "category": "network", "timeoutSec": 30
	}`)
	write(t, filepath.Join(cases, "ping", types.CaseScriptFilename), "exit 0\n")
	write(t, filepath.Join(suites, "smoke", types.SuiteManifestFilename), `{
		"schemaVersion": "1.0.0",
		"id": "smoke", "version": "1.0.0",
		"nodes": [
			{"nodeId": "disk", "ref": "disk-check", "inputs": {"Threshold": 90}},
			{"nodeId": "net", "ref": "ping"}
		],
		"controls": {"continueOnFailure": true}
	}`)
	write(t, filepath.Join(plans, "nightly", types.PlanManifestFilename), `{
		"schemaVersion": "1.0.0",
		"id": "nightly", "version": "1.0.0",
		"suites": ["smoke"],
		"environment": {"env": {"CI": "1"}}
	}`)

	cfg := &Config{
		CaseRoot:      cases,
		SuiteRoot:     suites,
		PlanRoot:      plans,
		RunsRoot:      runs,
		Interpreter:   "definitely-not-a-real-interpreter",
		EngineVersion: "v0.0.0-test",
	}
	engine, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return &engineFixture{cfg: cfg, engine: engine}
}

func TestEngineRunCase(t *testing.T) {
	fx := newEngineFixture(t)

	outcome, err := fx.engine.Run(context.Background(), types.RunRequest{
		Kind:       types.TargetTestCase,
		Target:     types.Identity{ID: "disk-check", Version: "1.2.0"},
		Parameters: map[string]any{"Threshold": 90},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Case)

	record := outcome.Case
	assert.Equal(t, types.StatusError, record.Status)
	require.NotNil(t, record.Error)
	assert.Equal(t, "LaunchError", record.Error.Type)
	assert.Equal(t, types.ErrorSourceRunner, record.Error.Source)
	assert.Equal(t, "v0.0.0-test", record.Runner.EngineVersion)
	assert.Equal(t, int64(90), record.Inputs["Threshold"])

	// The run folder and its snapshots were written before launch.
	runDir := filepath.Join(fx.cfg.RunsRoot, "run-"+record.RunID)
	assert.FileExists(t, filepath.Join(runDir, "manifest.json"))
	assert.FileExists(t, filepath.Join(runDir, "parameters.json"))
	assert.FileExists(t, filepath.Join(runDir, "environment.json"))
	assert.FileExists(t, filepath.Join(runDir, "result.json"))

	entries, err := fx.engine.Store().RunIndex().Scan()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, record.RunID, entries[0].RunID)
}

func TestEngineRunCaseBareIDResolution(t *testing.T) {
	fx := newEngineFixture(t)

	outcome, err := fx.engine.Run(context.Background(), types.RunRequest{
		Kind:       types.TargetTestCase,
		Target:     types.Identity{ID: "ping"},
		Parameters: nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "ping@1.0.0", outcome.Case.TestID.String())

	_, err = fx.engine.Run(context.Background(), types.RunRequest{
		Kind:   types.TargetTestCase,
		Target: types.Identity{ID: "no-such-case"},
	})
	require.Error(t, err)
}

func TestEngineRunCaseBindErrorIsStrict(t *testing.T) {
	fx := newEngineFixture(t)

	// Missing required parameter: rejected before any folder exists.
	_, err := fx.engine.Run(context.Background(), types.RunRequest{
		Kind:   types.TargetTestCase,
		Target: types.Identity{ID: "disk-check", Version: "1.2.0"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Threshold")

	entries, scanErr := fx.engine.Store().RunIndex().Scan()
	require.NoError(t, scanErr)
	assert.Empty(t, entries)
}

func TestEngineRunSuite(t *testing.T) {
	fx := newEngineFixture(t)

	outcome, err := fx.engine.Run(context.Background(), types.RunRequest{
		Kind:   types.TargetSuite,
		Target: types.Identity{ID: "smoke"},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Group)

	group := outcome.Group
	assert.Equal(t, types.KindTestSuite, group.Kind)
	assert.Equal(t, 2, group.Stats.Total)
	// Launch failures are runner errors, not skips.
	assert.Equal(t, 2, group.Stats.Errored)
	for _, node := range group.Nodes {
		assert.Len(t, node.RunIDs, 1, "node %s keeps its run folder", node.NodeID)
	}

	// Both summary sinks wrote next to the run folders.
	txt, err := filepath.Glob(filepath.Join(fx.cfg.RunsRoot, "suite-smoke_1.0.0-*.txt"))
	require.NoError(t, err)
	assert.Len(t, txt, 1)
	jsonFiles, err := filepath.Glob(filepath.Join(fx.cfg.RunsRoot, "suite-smoke_1.0.0-*.json"))
	require.NoError(t, err)
	assert.Len(t, jsonFiles, 1)
}

func TestEngineRunPlan(t *testing.T) {
	fx := newEngineFixture(t)

	outcome, err := fx.engine.Run(context.Background(), types.RunRequest{
		Kind:   types.TargetPlan,
		Target: types.Identity{ID: "nightly", Version: "1.0.0"},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Group)

	group := outcome.Group
	assert.Equal(t, types.KindTestPlan, group.Kind)
	require.Len(t, group.Children, 1)
	assert.Equal(t, "smoke@1.0.0", group.Children[0].GroupID.String())
	assert.Equal(t, 2, group.Stats.Total)
}

func TestEngineRunUnknownKind(t *testing.T) {
	fx := newEngineFixture(t)
	_, err := fx.engine.Run(context.Background(), types.RunRequest{
		Kind:   types.TargetKind("bogus"),
		Target: types.Identity{ID: "x"},
	})
	require.Error(t, err)
}

func TestMergeInputs(t *testing.T) {
	node := map[string]any{"A": 1, "B": 2}
	merged := mergeInputs(node, map[string]any{"B": 3, "C": 4})
	assert.Equal(t, map[string]any{"A": 1, "B": 3, "C": 4}, merged)
	// Node inputs are not mutated.
	assert.Equal(t, 2, node["B"])

	same := mergeInputs(node, nil)
	assert.Equal(t, map[string]any{"A": 1, "B": 2}, same)
}

func TestNodeTimeout(t *testing.T) {
	c := &types.TestCaseManifest{TimeoutSec: 30}

	assert.Equal(t, 30*time.Second, nodeTimeout(c, types.SuiteControls{}))
	assert.Equal(t, 10*time.Second, nodeTimeout(c, types.SuiteControls{
		TimeoutPolicy:   types.TimeoutPolicySuite,
		SuiteTimeoutSec: 10,
	}))
}

func TestPreLaunchFailureRecord(t *testing.T) {
	fx := newEngineFixture(t)
	exec := &caseExecutor{engine: fx.engine, scope: environ.ScopeSuite}

	node, err := fx.engine.index.ResolveRef("disk-check")
	require.NoError(t, err)

	// Missing required parameter in suite context folds into a record.
	record, execErr := exec.ExecuteCase(context.Background(), nodeRunFor(node), 1)
	require.NoError(t, execErr)
	assert.Equal(t, types.StatusError, record.Status)
	assert.Equal(t, "BindError", record.Error.Type)
	assert.Empty(t, record.RunID)
}

func nodeRunFor(c *types.TestCaseManifest) runner.NodeRun {
	return runner.NodeRun{NodeID: c.ID, Case: c, Timeout: c.Timeout()}
}

func TestRunOutcomeStatus(t *testing.T) {
	assert.Equal(t, types.StatusFailed, (&RunOutcome{Case: &types.ResultRecord{Status: types.StatusFailed}}).Status())
	assert.Equal(t, types.StatusPassed, (&RunOutcome{Group: &types.GroupResult{Status: types.StatusPassed}}).Status())
	assert.Equal(t, types.StatusSkipped, (&RunOutcome{}).Status())
}
