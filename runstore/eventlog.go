package runstore

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Event is one line of a run's append-only event log.
type Event struct {
	Time    time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventLog writes one JSON object per line to a run-local file. Writes are
// serialized; the log survives abnormal process termination up to the last
// completed line.
type EventLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenEventLog creates (or truncates) the event log at path.
func OpenEventLog(path string) (*EventLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &EventLog{file: file, enc: json.NewEncoder(file)}, nil
}

// Append writes one event. Errors are returned but callers typically log
// and continue: a failing event log must not fail the run.
func (l *EventLog) Append(level, code, message string, data map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	return l.enc.Encode(Event{
		Time:    time.Now().UTC(),
		Level:   level,
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Close flushes and closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
