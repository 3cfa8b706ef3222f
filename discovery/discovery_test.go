package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runweave/runweave/types"
)

type roots struct {
	cases  string
	suites string
	plans  string
}

func newRoots(t *testing.T) roots {
	t.Helper()
	base := t.TempDir()
	r := roots{
		cases:  filepath.Join(base, "cases"),
		suites: filepath.Join(base, "suites"),
		plans:  filepath.Join(base, "plans"),
	}
	for _, dir := range []string{r.cases, r.suites, r.plans} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return r
}

func (r roots) config() Config {
	return Config{CaseRoot: r.cases, SuiteRoot: r.suites, PlanRoot: r.plans}
}

// writeCase creates a case directory with a manifest and companion script.
func writeCase(t *testing.T, root, dir, manifest string) string {
	t.Helper()
	caseDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(caseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, types.CaseManifestFilename), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, types.CaseScriptFilename), []byte("exit 0\n"), 0o644))
	return caseDir
}

func writeSuite(t *testing.T, root, dir, manifest string) {
	t.Helper()
	suiteDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(suiteDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(suiteDir, types.SuiteManifestFilename), []byte(manifest), 0o644))
}

func writePlan(t *testing.T, root, dir, manifest string) {
	t.Helper()
	planDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(planDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(planDir, types.PlanManifestFilename), []byte(manifest), 0o644))
}

func discoveryErr(t *testing.T, err error) *DiscoveryError {
	t.Helper()
	require.Error(t, err)
	derr, ok := err.(*DiscoveryError)
	require.True(t, ok, "expected *DiscoveryError, got %T: %v", err, err)
	return derr
}

func TestDiscoverHappyPath(t *testing.T) {
	r := newRoots(t)
	writeCase(t, r.cases, "disk-check", `{
		"schemaVersion": "1.0.0",
		"id": "disk-check", "version": "1.2.0",
		"name": "Disk Check", "category": "storage",
		"parameters": [
			{"name": "Threshold", "type": "int", "required": true},
			{"name": "Verbose", "type": "bool", "default": false}
		]
	}`)
	writeCase(t, r.cases, "net/ping", `{
		"schemaVersion": "1.1.0",
		"id": "ping", "version": "2.0.0",
		"name": "Ping", "category": "network", "timeoutSec": 30
	}`)
	writeSuite(t, r.suites, "smoke", `{
		"schemaVersion": "1.0.0",
		"id": "smoke", "version": "1.0.0",
		"nodes": [
			{"nodeId": "disk", "ref": "disk-check", "inputs": {"Threshold": 90}},
			{"nodeId": "net", "ref": "net/ping"}
		]
	}`)
	writePlan(t, r.plans, "nightly", `{
		"schemaVersion": "1.0.0",
		"id": "nightly", "version": "1.0.0",
		"suites": ["smoke@1.0.0"],
		"environment": {"env": {"CI": "1"}}
	}`)

	ix, err := Discover(context.Background(), r.config())
	require.NoError(t, err)
	require.Len(t, ix.Cases, 2)
	require.Len(t, ix.Suites, 1)
	require.Len(t, ix.Plans, 1)

	c, ok := ix.Case(types.Identity{ID: "disk-check", Version: "1.2.0"})
	require.True(t, ok)
	assert.Equal(t, "Disk Check", c.Name)
	assert.NotEmpty(t, c.ScriptPath)

	// Bare and versioned suite references resolve to the same manifest.
	bare, err := ix.Suite("smoke")
	require.NoError(t, err)
	versioned, err := ix.Suite("smoke@1.0.0")
	require.NoError(t, err)
	assert.Same(t, bare, versioned)

	// Node references resolve by directory or manifest path.
	byDir, err := ix.ResolveRef("net/ping")
	require.NoError(t, err)
	byFile, err := ix.ResolveRef(filepath.Join("net", "ping", types.CaseManifestFilename))
	require.NoError(t, err)
	assert.Same(t, byDir, byFile)
	assert.Equal(t, "ping", byDir.ID)

	p, ok := ix.Plan(types.Identity{ID: "nightly", Version: "1.0.0"})
	require.True(t, ok)
	assert.Equal(t, "1", p.Environment.Env["CI"])
}

func TestDiscoverSkipsCaseWithoutScript(t *testing.T) {
	r := newRoots(t)
	dir := filepath.Join(r.cases, "orphan")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, types.CaseManifestFilename),
		[]byte(`{"schemaVersion":"1.0.0","id":"orphan","version":"1.0.0","name":"x","category":"c"}`), 0o644))

	ix, err := Discover(context.Background(), r.config())
	require.NoError(t, err)
	assert.Empty(t, ix.Cases)
}

func TestDiscoverAccumulatesViolations(t *testing.T) {
	r := newRoots(t)
	// Unsupported schema major.
	writeCase(t, r.cases, "future", `{
		"schemaVersion": "2.0.0",
		"id": "future", "version": "1.0.0", "name": "x", "category": "c"
	}`)
	// Missing identity plus malformed parameter list.
	writeCase(t, r.cases, "broken", `{
		"schemaVersion": "1.0.0",
		"name": "x", "category": "c",
		"parameters": [
			{"name": "Mode", "type": "enum"},
			{"name": "Mode", "type": "wat"}
		]
	}`)
	// Unparseable JSON.
	writeCase(t, r.cases, "garbled", `{"schemaVersion": `)

	_, err := Discover(context.Background(), r.config())
	derr := discoveryErr(t, err)
	assert.True(t, derr.HasCode(CodeUnsupportedSchema))
	assert.True(t, derr.HasCode(CodeMissingIdentity))
	assert.True(t, derr.HasCode(CodeDuplicateParam))
	assert.True(t, derr.HasCode(CodeUnknownParamType))
	assert.True(t, derr.HasCode(CodeEmptyEnumValues))
	assert.True(t, derr.HasCode(CodeManifestInvalid))
	// Every violation reported in one pass, not fail-fast.
	assert.GreaterOrEqual(t, len(derr.Violations), 6)
}

func TestDiscoverDuplicateIdentity(t *testing.T) {
	r := newRoots(t)
	manifest := `{"schemaVersion":"1.0.0","id":"dup","version":"1.0.0","name":"x","category":"c"}`
	writeCase(t, r.cases, "a", manifest)
	writeCase(t, r.cases, "b", manifest)

	_, err := Discover(context.Background(), r.config())
	derr := discoveryErr(t, err)
	require.True(t, derr.HasCode(CodeDuplicateIdentity))
	for _, v := range derr.Violations {
		if v.Code == CodeDuplicateIdentity {
			assert.NotEmpty(t, v.Conflicts, "duplicate must name its twin")
		}
	}
}

func TestDiscoverSuiteGraphViolations(t *testing.T) {
	r := newRoots(t)
	writeCase(t, r.cases, "ok", `{
		"schemaVersion": "1.0.0",
		"id": "ok", "version": "1.0.0", "name": "x", "category": "c",
		"parameters": [{"name": "Declared", "type": "string"}]
	}`)
	writeSuite(t, r.suites, "bad", `{
		"schemaVersion": "1.0.0",
		"id": "bad", "version": "1.0.0",
		"nodes": [
			{"nodeId": "gone", "ref": "does-not-exist"},
			{"nodeId": "escape", "ref": "../outside"},
			{"nodeId": "typo", "ref": "ok", "inputs": {"Undeclared": 1}}
		]
	}`)

	_, err := Discover(context.Background(), r.config())
	derr := discoveryErr(t, err)
	assert.True(t, derr.HasCode(CodeRefNotFound))
	assert.True(t, derr.HasCode(CodeRefOutOfRoot))
	assert.True(t, derr.HasCode(CodeUnknownInputParam))
}

func TestDiscoverDuplicateNodeID(t *testing.T) {
	r := newRoots(t)
	writeCase(t, r.cases, "ok", `{"schemaVersion":"1.0.0","id":"ok","version":"1.0.0","name":"x","category":"c"}`)
	writeSuite(t, r.suites, "s", `{
		"schemaVersion": "1.0.0",
		"id": "s", "version": "1.0.0",
		"nodes": [
			{"nodeId": "n", "ref": "ok"},
			{"nodeId": "n", "ref": "ok"}
		]
	}`)

	_, err := Discover(context.Background(), r.config())
	assert.True(t, discoveryErr(t, err).HasCode(CodeDuplicateNodeID))
}

func TestDiscoverInvalidControls(t *testing.T) {
	tests := []struct {
		name     string
		controls string
	}{
		{"negative repeat", `{"repeat": -1}`},
		{"suite policy without timeout", `{"timeoutPolicy": "suite"}`},
		{"unknown policy", `{"timeoutPolicy": "global"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRoots(t)
			writeCase(t, r.cases, "ok", `{"schemaVersion":"1.0.0","id":"ok","version":"1.0.0","name":"x","category":"c"}`)
			writeSuite(t, r.suites, "s", `{
				"schemaVersion": "1.0.0",
				"id": "s", "version": "1.0.0",
				"nodes": [{"nodeId": "n", "ref": "ok"}],
				"controls": `+tt.controls+`
			}`)

			_, err := Discover(context.Background(), r.config())
			assert.True(t, discoveryErr(t, err).HasCode(CodeInvalidControls))
		})
	}
}

func TestDiscoverPlanEnvOnlyInvariant(t *testing.T) {
	r := newRoots(t)
	writeCase(t, r.cases, "ok", `{"schemaVersion":"1.0.0","id":"ok","version":"1.0.0","name":"x","category":"c"}`)
	writeSuite(t, r.suites, "s", `{
		"schemaVersion": "1.0.0", "id": "s", "version": "1.0.0",
		"nodes": [{"nodeId": "n", "ref": "ok"}]
	}`)
	writePlan(t, r.plans, "p", `{
		"schemaVersion": "1.0.0", "id": "p", "version": "1.0.0",
		"suites": ["s"],
		"environment": {"env": {"A": "1"}, "workingDir": "/tmp"}
	}`)

	_, err := Discover(context.Background(), r.config())
	assert.True(t, discoveryErr(t, err).HasCode(CodePlanEnvInvalidKey))
}

func TestDiscoverSuiteRefResolution(t *testing.T) {
	r := newRoots(t)
	writeCase(t, r.cases, "ok", `{"schemaVersion":"1.0.0","id":"ok","version":"1.0.0","name":"x","category":"c"}`)
	node := `"nodes": [{"nodeId": "n", "ref": "ok"}]`
	writeSuite(t, r.suites, "v1", `{"schemaVersion":"1.0.0","id":"multi","version":"1.0.0",`+node+`}`)
	writeSuite(t, r.suites, "v2", `{"schemaVersion":"1.0.0","id":"multi","version":"2.0.0",`+node+`}`)
	writePlan(t, r.plans, "ambiguous", `{
		"schemaVersion": "1.0.0", "id": "ambiguous", "version": "1.0.0",
		"suites": ["multi"]
	}`)
	writePlan(t, r.plans, "missing", `{
		"schemaVersion": "1.0.0", "id": "missing", "version": "1.0.0",
		"suites": ["nowhere"]
	}`)

	_, err := Discover(context.Background(), r.config())
	derr := discoveryErr(t, err)
	assert.True(t, derr.HasCode(CodeSuiteRefNonUnique))
	assert.True(t, derr.HasCode(CodeSuiteRefNotFound))
}

func TestDiscoverOptionalRoots(t *testing.T) {
	r := newRoots(t)
	writeCase(t, r.cases, "ok", `{"schemaVersion":"1.0.0","id":"ok","version":"1.0.0","name":"x","category":"c"}`)

	ix, err := Discover(context.Background(), Config{CaseRoot: r.cases})
	require.NoError(t, err)
	assert.Len(t, ix.Cases, 1)
	assert.Empty(t, ix.Suites)
	assert.Empty(t, ix.Plans)
}

func TestDiscoverRequiresCaseRoot(t *testing.T) {
	_, err := Discover(context.Background(), Config{})
	require.Error(t, err)
}

func TestDiscoverCancelledContext(t *testing.T) {
	r := newRoots(t)
	writeCase(t, r.cases, "ok", `{"schemaVersion":"1.0.0","id":"ok","version":"1.0.0","name":"x","category":"c"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Discover(ctx, r.config())
	require.ErrorIs(t, err, context.Canceled)
}
