package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/runweave/runweave/types"
)

// Sink persists one finished group result.
type Sink interface {
	Write(group *types.GroupResult) error
}

// TextSummarySink writes an indented plain-text summary file per group
// run under the given directory.
type TextSummarySink struct {
	dir       string
	formatter *TreeFormatter
	log       log.Logger
}

// NewTextSummarySink creates a text sink writing into dir.
func NewTextSummarySink(dir string, logger log.Logger) *TextSummarySink {
	if logger == nil {
		logger = log.New()
	}
	return &TextSummarySink{
		dir:       dir,
		formatter: NewTreeFormatter(true, true),
		log:       logger,
	}
}

func (s *TextSummarySink) Write(group *types.GroupResult) error {
	path := filepath.Join(s.dir, summaryFilename(group, "txt"))
	content := fmt.Sprintf("%s summary, generated %s\n\n%s",
		kindName(group.Kind), time.Now().UTC().Format(time.RFC3339),
		s.formatter.Format(group))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing text summary: %w", err)
	}
	s.log.Debug("Wrote group summary", "path", path)
	return nil
}

// JSONSummarySink writes the full group result as indented JSON, the
// machine-readable sibling of the text summary.
type JSONSummarySink struct {
	dir string
	log log.Logger
}

// NewJSONSummarySink creates a JSON sink writing into dir.
func NewJSONSummarySink(dir string, logger log.Logger) *JSONSummarySink {
	if logger == nil {
		logger = log.New()
	}
	return &JSONSummarySink{dir: dir, log: logger}
}

func (s *JSONSummarySink) Write(group *types.GroupResult) error {
	data, err := json.MarshalIndent(group, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding group result: %w", err)
	}
	path := filepath.Join(s.dir, summaryFilename(group, "json"))
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing json summary: %w", err)
	}
	s.log.Debug("Wrote group summary", "path", path)
	return nil
}

// summaryFilename builds a collision-safe file name from the group
// identity and its start time.
func summaryFilename(group *types.GroupResult, ext string) string {
	id := sanitize(group.GroupID.String())
	return fmt.Sprintf("%s-%s-%s.%s",
		strings.ToLower(kindName(group.Kind)), id,
		group.Start.UTC().Format("20060102-150405"), ext)
}

// sanitize keeps file names portable across host filesystems.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
