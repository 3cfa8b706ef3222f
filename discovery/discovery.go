// Package discovery walks manifest roots, parses test-case, suite and plan
// manifests, and enforces referential and structural invariants across the
// whole corpus before any run starts. Discovery is all-or-nothing: every
// violation found in one pass is accumulated into a DiscoveryError and no
// partial index is returned.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"

	"github.com/runweave/runweave/types"
)

// SupportedSchemaMajor is the manifest schemaVersion major the engine
// accepts. A mismatch is fatal, not degraded.
const SupportedSchemaMajor = "v1"

// Config configures one discovery pass.
type Config struct {
	Log       log.Logger
	CaseRoot  string
	SuiteRoot string
	PlanRoot  string
}

// Index is the parsed manifest corpus for one engine invocation. It is
// read-only after Discover returns.
type Index struct {
	Cases  []*types.TestCaseManifest
	Suites []*types.TestSuiteManifest
	Plans  []*types.TestPlanManifest

	caseRoot   string
	casesByKey map[types.Identity]*types.TestCaseManifest
	casesByDir map[string]*types.TestCaseManifest
	suitesByID map[string][]*types.TestSuiteManifest
	plansByKey map[types.Identity]*types.TestPlanManifest
}

// Case returns the case manifest with the given identity.
func (ix *Index) Case(id types.Identity) (*types.TestCaseManifest, bool) {
	m, ok := ix.casesByKey[id]
	return m, ok
}

// CaseByDir returns the case manifest discovered in the given directory.
func (ix *Index) CaseByDir(dir string) (*types.TestCaseManifest, bool) {
	m, ok := ix.casesByDir[filepath.Clean(dir)]
	return m, ok
}

// Suite resolves a suite reference of the form "id@version" or bare "id".
// A bare id must match exactly one known suite.
func (ix *Index) Suite(ref string) (*types.TestSuiteManifest, error) {
	id, version, versioned := strings.Cut(ref, "@")
	candidates := ix.suitesByID[id]
	if versioned {
		for _, s := range candidates {
			if s.Version == version {
				return s, nil
			}
		}
		return nil, fmt.Errorf("suite %q not found", ref)
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("suite %q not found", ref)
	case 1:
		return candidates[0], nil
	default:
		return nil, fmt.Errorf("suite reference %q matches %d versions", ref, len(candidates))
	}
}

// Plan returns the plan manifest with the given identity.
func (ix *Index) Plan(id types.Identity) (*types.TestPlanManifest, bool) {
	m, ok := ix.plansByKey[id]
	return m, ok
}

// ResolveRef resolves a suite node's path-like case reference against the
// case root. The resolved path must stay inside the root.
func (ix *Index) ResolveRef(ref string) (*types.TestCaseManifest, error) {
	return resolveCaseRef(ix, ix.caseRoot, ref)
}

// Discover runs one full discovery pass over the configured roots.
func Discover(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.CaseRoot == "" {
		return nil, fmt.Errorf("case root is required")
	}

	caseRoot, err := filepath.Abs(cfg.CaseRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving case root: %w", err)
	}

	ix := &Index{
		caseRoot:   caseRoot,
		casesByKey: make(map[types.Identity]*types.TestCaseManifest),
		casesByDir: make(map[string]*types.TestCaseManifest),
		suitesByID: make(map[string][]*types.TestSuiteManifest),
		plansByKey: make(map[types.Identity]*types.TestPlanManifest),
	}

	var mu sync.Mutex
	var violations []Violation
	addViolation := func(v Violation) {
		mu.Lock()
		violations = append(violations, v)
		mu.Unlock()
	}

	casePaths, err := findCaseManifests(caseRoot)
	if err != nil {
		return nil, fmt.Errorf("walking case root: %w", err)
	}
	suitePaths, err := findManifests(cfg.SuiteRoot, types.SuiteManifestFilename)
	if err != nil {
		return nil, fmt.Errorf("walking suite root: %w", err)
	}
	planPaths, err := findManifests(cfg.PlanRoot, types.PlanManifestFilename)
	if err != nil {
		return nil, fmt.Errorf("walking plan root: %w", err)
	}

	cfg.Log.Debug("Discovered manifest files",
		"cases", len(casePaths), "suites", len(suitePaths), "plans", len(planPaths))

	// Entries are independent, so files parse in parallel. Aggregation
	// (uniqueness, cross references) happens after all loads complete.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, path := range casePaths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, vs := loadCaseManifest(path)
			for _, v := range vs {
				addViolation(v)
			}
			if m != nil {
				mu.Lock()
				ix.Cases = append(ix.Cases, m)
				mu.Unlock()
			}
			return nil
		})
	}
	for _, path := range suitePaths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, vs := loadSuiteManifest(path)
			for _, v := range vs {
				addViolation(v)
			}
			if m != nil {
				mu.Lock()
				ix.Suites = append(ix.Suites, m)
				mu.Unlock()
			}
			return nil
		})
	}
	for _, path := range planPaths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, vs := loadPlanManifest(path)
			for _, v := range vs {
				addViolation(v)
			}
			if m != nil {
				mu.Lock()
				ix.Plans = append(ix.Plans, m)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deterministic order regardless of walk/parse interleaving.
	sort.Slice(ix.Cases, func(i, j int) bool { return ix.Cases[i].Path < ix.Cases[j].Path })
	sort.Slice(ix.Suites, func(i, j int) bool { return ix.Suites[i].Path < ix.Suites[j].Path })
	sort.Slice(ix.Plans, func(i, j int) bool { return ix.Plans[i].Path < ix.Plans[j].Path })

	violations = append(violations, ix.buildLookups()...)
	violations = append(violations, validateGraph(ix)...)

	if len(violations) > 0 {
		sort.Slice(violations, func(i, j int) bool {
			if violations[i].Path != violations[j].Path {
				return violations[i].Path < violations[j].Path
			}
			return violations[i].Code < violations[j].Code
		})
		return nil, &DiscoveryError{Violations: violations}
	}

	cfg.Log.Info("Manifest discovery complete",
		"cases", len(ix.Cases), "suites", len(ix.Suites), "plans", len(ix.Plans))
	return ix, nil
}

// buildLookups populates the identity maps and reports duplicates.
func (ix *Index) buildLookups() []Violation {
	var violations []Violation

	for _, m := range ix.Cases {
		if prev, dup := ix.casesByKey[m.Identity]; dup {
			violations = append(violations, Violation{
				Code:      CodeDuplicateIdentity,
				Path:      m.Path,
				Conflicts: []string{prev.Path},
				Reason:    fmt.Sprintf("test case %s declared more than once", m.Identity),
			})
			continue
		}
		ix.casesByKey[m.Identity] = m
		ix.casesByDir[filepath.Dir(m.Path)] = m
	}

	suiteKeys := make(map[types.Identity]*types.TestSuiteManifest)
	for _, m := range ix.Suites {
		if prev, dup := suiteKeys[m.Identity]; dup {
			violations = append(violations, Violation{
				Code:      CodeDuplicateIdentity,
				Path:      m.Path,
				Conflicts: []string{prev.Path},
				Reason:    fmt.Sprintf("suite %s declared more than once", m.Identity),
			})
			continue
		}
		suiteKeys[m.Identity] = m
		ix.suitesByID[m.ID] = append(ix.suitesByID[m.ID], m)
	}

	for _, m := range ix.Plans {
		if prev, dup := ix.plansByKey[m.Identity]; dup {
			violations = append(violations, Violation{
				Code:      CodeDuplicateIdentity,
				Path:      m.Path,
				Conflicts: []string{prev.Path},
				Reason:    fmt.Sprintf("plan %s declared more than once", m.Identity),
			})
			continue
		}
		ix.plansByKey[m.Identity] = m
	}

	return violations
}

// findCaseManifests returns case manifest paths whose directory also holds
// the companion script. Directories without both are skipped, not errors.
func findCaseManifests(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != types.CaseManifestFilename {
			return nil
		}
		script := filepath.Join(filepath.Dir(path), types.CaseScriptFilename)
		if _, err := os.Stat(script); err != nil {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("case root %s does not exist", root)
	}
	return paths, err
}

// findManifests walks root for files with the given name. An empty root
// yields an empty set, so suite/plan roots are optional.
func findManifests(root, name string) ([]string, error) {
	if root == "" {
		return nil, nil
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			paths = append(paths, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("manifest root %s does not exist", root)
	}
	return paths, err
}

// checkSchemaVersion gates on the manifest's schemaVersion major.
func checkSchemaVersion(path, schemaVersion string) []Violation {
	if schemaVersion == "" {
		return []Violation{{
			Code:   CodeUnsupportedSchema,
			Path:   path,
			Reason: "manifest carries no schemaVersion",
		}}
	}
	major := semver.Major("v" + schemaVersion)
	if major == "" {
		return []Violation{{
			Code:   CodeUnsupportedSchema,
			Path:   path,
			Reason: fmt.Sprintf("schemaVersion %q is not a valid version", schemaVersion),
		}}
	}
	if major != SupportedSchemaMajor {
		return []Violation{{
			Code:   CodeUnsupportedSchema,
			Path:   path,
			Reason: fmt.Sprintf("schemaVersion %q has unsupported major %s (supported: %s)", schemaVersion, major, SupportedSchemaMajor),
		}}
	}
	return nil
}

func loadCaseManifest(path string) (*types.TestCaseManifest, []Violation) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []Violation{{Code: CodeManifestInvalid, Path: path, Reason: err.Error()}}
	}
	var m types.TestCaseManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, []Violation{{
			Code:   CodeManifestInvalid,
			Path:   path,
			Reason: fmt.Sprintf("parsing manifest: %v", err),
		}}
	}
	m.Path = filepath.Clean(path)
	m.ScriptPath = filepath.Join(filepath.Dir(m.Path), types.CaseScriptFilename)

	violations := checkSchemaVersion(path, m.SchemaVersion)
	violations = append(violations, validateCase(&m)...)
	if len(violations) > 0 {
		return nil, violations
	}
	return &m, nil
}

func loadSuiteManifest(path string) (*types.TestSuiteManifest, []Violation) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []Violation{{Code: CodeManifestInvalid, Path: path, Reason: err.Error()}}
	}
	var m types.TestSuiteManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, []Violation{{
			Code:   CodeManifestInvalid,
			Path:   path,
			Reason: fmt.Sprintf("parsing manifest: %v", err),
		}}
	}
	m.Path = filepath.Clean(path)

	violations := checkSchemaVersion(path, m.SchemaVersion)
	violations = append(violations, validateSuiteLocal(&m)...)
	if len(violations) > 0 {
		return nil, violations
	}
	return &m, nil
}

func loadPlanManifest(path string) (*types.TestPlanManifest, []Violation) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []Violation{{Code: CodeManifestInvalid, Path: path, Reason: err.Error()}}
	}
	var m types.TestPlanManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, []Violation{{
			Code:   CodeManifestInvalid,
			Path:   path,
			Reason: fmt.Sprintf("parsing manifest: %v", err),
		}}
	}
	m.Path = filepath.Clean(path)

	violations := checkSchemaVersion(path, m.SchemaVersion)
	violations = append(violations, validatePlanLocal(&m, data)...)
	if len(violations) > 0 {
		return nil, violations
	}
	return &m, nil
}
