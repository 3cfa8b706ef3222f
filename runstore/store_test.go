package runstore

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

func testCase() *types.TestCaseManifest {
	return &types.TestCaseManifest{
		SchemaVersion: "1.0.0",
		Identity:      types.Identity{ID: "disk-check", Version: "1.2.0"},
		Name:          "Disk Check",
		Category:      "storage",
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestCreateRunSnapshots(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	params := map[string]any{"Threshold": int64(90)}
	env := map[string]string{"CI": "1"}
	rc, err := store.CreateRun(testCase(), params, env)
	require.NoError(t, err)

	assert.NotEmpty(t, rc.RunID)
	assert.DirExists(t, rc.Dir)
	assert.DirExists(t, rc.ArtifactsDir)
	assert.Equal(t, filepath.Base(rc.Dir), RunDirectoryPrefix+rc.RunID)

	// All three snapshots land before anything executes.
	var manifest types.TestCaseManifest
	readJSON(t, filepath.Join(rc.Dir, "manifest.json"), &manifest)
	assert.Equal(t, "disk-check", manifest.ID)

	var gotParams map[string]any
	readJSON(t, filepath.Join(rc.Dir, "parameters.json"), &gotParams)
	assert.Equal(t, float64(90), gotParams["Threshold"])

	var gotEnv map[string]string
	readJSON(t, filepath.Join(rc.Dir, "environment.json"), &gotEnv)
	assert.Equal(t, env, gotEnv)

	require.NoError(t, rc.Events.Close())
}

func TestCreateRunUniqueFolders(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		rc, err := store.CreateRun(testCase(), nil, nil)
		require.NoError(t, err)
		require.False(t, seen[rc.RunID], "duplicate run id %s", rc.RunID)
		seen[rc.RunID] = true
		require.NoError(t, rc.Events.Close())
	}
}

func TestWriteResultAppendsIndex(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	start := time.Now().UTC()
	for i, status := range []types.RunStatus{types.StatusPassed, types.StatusFailed} {
		rc, err := store.CreateRun(testCase(), nil, nil)
		require.NoError(t, err)
		require.NoError(t, rc.Events.Append("info", "test", "hello", nil))

		result := &types.ResultRecord{
			RunID:    rc.RunID,
			TestID:   rc.TestID,
			Status:   status,
			Start:    start,
			End:      start.Add(time.Second),
			ExitCode: i,
		}
		require.NoError(t, store.WriteResult(rc, result, 1))

		var onDisk types.ResultRecord
		readJSON(t, rc.ResultPath, &onDisk)
		assert.Equal(t, status, onDisk.Status)
	}

	entries, err := store.RunIndex().Scan()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.StatusPassed, entries[0].Status)
	assert.Equal(t, types.StatusFailed, entries[1].Status)
	assert.Equal(t, "disk-check@1.2.0", entries[0].TestID)
	assert.Equal(t, 1, entries[0].Attempt)
}

func TestReportDetection(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	rc, err := store.CreateRun(testCase(), nil, nil)
	require.NoError(t, err)
	defer rc.Events.Close()

	assert.False(t, rc.ReportExists())
	require.NoError(t, os.WriteFile(rc.ReportPath(), []byte(`{"ok": true}`), 0o644))
	assert.True(t, rc.ReportExists())
}

func TestIndexScanSkipsGarbledLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, IndexFilename)
	ix := NewIndex(path)

	require.NoError(t, ix.Append(IndexEntry{RunID: "a", TestID: "t@1", Status: types.StatusPassed}))

	// A torn write must not poison later history scans.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"runId\": \"torn\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, ix.Append(IndexEntry{RunID: "b", TestID: "t@1", Status: types.StatusError}))

	entries, err := ix.Scan()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].RunID)
	assert.Equal(t, "b", entries[1].RunID)
}

func TestIndexScanMissingFile(t *testing.T) {
	ix := NewIndex(filepath.Join(t.TempDir(), IndexFilename))
	entries, err := ix.Scan()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEventLogAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el, err := OpenEventLog(path)
	require.NoError(t, err)
	require.NoError(t, el.Append("info", "a", "first", map[string]any{"k": "v"}))
	require.NoError(t, el.Close())
	require.Error(t, el.Append("info", "b", "late", nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "first", ev.Message)
}
