// Package runstore owns the per-run artifact folders and the shared
// append-only run index. A run folder is allocated and fully snapshotted
// before the script is launched, so whatever the process does later, the
// inputs that produced it are already on disk.
package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/runweave/runweave/types"
)

const (
	// RunDirectoryPrefix is the standardized prefix for run folders.
	RunDirectoryPrefix = "run-"

	manifestSnapshotFile  = "manifest.json"
	parameterSnapshotFile = "parameters.json"
	environSnapshotFile   = "environment.json"
	stdoutLogFile         = "stdout.log"
	stderrLogFile         = "stderr.log"
	eventLogFile          = "events.jsonl"
	resultFile            = "result.json"
	artifactsDirName      = "artifacts"

	// ReportFilename is the artifact the script contract expects each test
	// to produce inside the run folder.
	ReportFilename = "report.json"
)

// RunContext is the ephemeral handle to one run's folder. It is created
// immediately before process launch and never mutated after the run
// completes.
type RunContext struct {
	RunID  string
	TestID types.Identity
	Dir    string

	StdoutPath   string
	StderrPath   string
	ResultPath   string
	ArtifactsDir string

	Events *EventLog
}

// ReportPath is where the script is expected to write its findings.
func (rc *RunContext) ReportPath() string {
	return filepath.Join(rc.ArtifactsDir, ReportFilename)
}

// Store allocates run folders under a single runs root and maintains the
// shared run index.
type Store struct {
	root  string
	log   log.Logger
	index *Index
}

// NewStore opens (creating if needed) a run store rooted at dir.
func NewStore(dir string, logger log.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("runs root is required")
	}
	if logger == nil {
		logger = log.New()
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving runs root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating runs root: %w", err)
	}
	return &Store{
		root:  root,
		log:   logger,
		index: NewIndex(filepath.Join(root, IndexFilename)),
	}, nil
}

// Root returns the runs root directory.
func (s *Store) Root() string { return s.root }

// RunIndex exposes the shared run index for history queries.
func (s *Store) RunIndex() *Index { return s.index }

// CreateRun allocates a fresh, unique run folder and writes the immutable
// pre-execution snapshots: the manifest as loaded, the bound parameter
// values, and the effective environment.
func (s *Store) CreateRun(manifest *types.TestCaseManifest, boundParams map[string]any, env map[string]string) (*RunContext, error) {
	runID, dir, err := s.allocateRunDir()
	if err != nil {
		return nil, err
	}

	rc := &RunContext{
		RunID:        runID,
		TestID:       manifest.Identity,
		Dir:          dir,
		StdoutPath:   filepath.Join(dir, stdoutLogFile),
		StderrPath:   filepath.Join(dir, stderrLogFile),
		ResultPath:   filepath.Join(dir, resultFile),
		ArtifactsDir: filepath.Join(dir, artifactsDirName),
	}

	if err := os.MkdirAll(rc.ArtifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifacts dir: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, manifestSnapshotFile), manifest); err != nil {
		return nil, fmt.Errorf("snapshotting manifest: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, parameterSnapshotFile), boundParams); err != nil {
		return nil, fmt.Errorf("snapshotting parameters: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, environSnapshotFile), env); err != nil {
		return nil, fmt.Errorf("snapshotting environment: %w", err)
	}

	events, err := OpenEventLog(filepath.Join(dir, eventLogFile))
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	rc.Events = events

	s.log.Debug("Allocated run folder", "run_id", runID, "dir", dir, "test", manifest.Identity.String())
	return rc, nil
}

// allocateRunDir creates a guaranteed-unique run folder named from a UTC
// timestamp plus a random suffix. A collision simply redraws the suffix.
func (s *Store) allocateRunDir() (string, string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		stamp := time.Now().UTC().Format("20060102-150405")
		suffix := uuid.New().String()[:8]
		runID := fmt.Sprintf("%s-%s", stamp, suffix)
		dir := filepath.Join(s.root, RunDirectoryPrefix+runID)

		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return runID, dir, nil
		}
		if !os.IsExist(err) {
			return "", "", fmt.Errorf("creating run folder: %w", err)
		}
	}
	return "", "", fmt.Errorf("could not allocate a unique run folder under %s", s.root)
}

// WriteResult persists the result record into the run folder, closes the
// event log, and appends the run to the shared index.
func (s *Store) WriteResult(rc *RunContext, result *types.ResultRecord, attempt int) error {
	if err := writeJSON(rc.ResultPath, result); err != nil {
		return fmt.Errorf("writing result record: %w", err)
	}
	if rc.Events != nil {
		if err := rc.Events.Close(); err != nil {
			s.log.Warn("Closing event log", "run_id", rc.RunID, "error", err)
		}
	}

	entry := IndexEntry{
		RunID:   rc.RunID,
		TestID:  result.TestID.String(),
		Status:  result.Status,
		Start:   result.Start,
		End:     result.End,
		Attempt: attempt,
	}
	if err := s.index.Append(entry); err != nil {
		return fmt.Errorf("appending run index: %w", err)
	}

	s.log.Info("Run persisted", "run_id", rc.RunID, "test", result.TestID.String(), "status", result.Status)
	return nil
}

// ReportExists checks whether the script produced its self-reported
// artifact.
func (rc *RunContext) ReportExists() bool {
	info, err := os.Stat(rc.ReportPath())
	return err == nil && !info.IsDir()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
