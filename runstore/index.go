package runstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/runweave/runweave/types"
)

// IndexFilename is the shared, append-only run ledger under the runs root:
// one JSON record per line, enabling history scans without opening every
// run folder.
const IndexFilename = "index.jsonl"

// IndexEntry is one completed run in the ledger.
type IndexEntry struct {
	RunID   string          `json:"runId"`
	TestID  string          `json:"testId"`
	Status  types.RunStatus `json:"status"`
	Start   time.Time       `json:"start"`
	End     time.Time       `json:"end"`
	Attempt int             `json:"attempt"`
}

// Index appends and scans the run ledger. Appends are serialized through
// an internal mutex for writers in this process and a file lock for
// writers in other processes.
type Index struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewIndex returns an index over the ledger at path. The file is created
// on first append.
func NewIndex(path string) *Index {
	return &Index{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the ledger file location.
func (ix *Index) Path() string { return ix.path }

// Append adds one record to the ledger.
func (ix *Index) Append(entry IndexEntry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.lock.Lock(); err != nil {
		return fmt.Errorf("locking run index: %w", err)
	}
	defer func() { _ = ix.lock.Unlock() }()

	file, err := os.OpenFile(ix.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening run index: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending run index: %w", err)
	}
	return nil
}

// Scan reads every ledger record in append order. A missing ledger yields
// an empty history. Unparseable lines are skipped: a half-written trailing
// record from a crashed run must not block history listing.
func (ix *Index) Scan() ([]IndexEntry, error) {
	file, err := os.Open(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run index: %w", err)
	}
	defer file.Close()

	var entries []IndexEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry IndexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning run index: %w", err)
	}
	return entries, nil
}
