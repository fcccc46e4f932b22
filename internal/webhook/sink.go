package webhook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultEventsPath is where received events are appended.
const DefaultEventsPath = ".data/finnhub_events.jsonl"

// Record is one line of the JSONL event log.
type Record struct {
	ReceivedAt time.Time       `json:"received_at"`
	Event      json.RawMessage `json:"event"`
}

// FileSink appends records as JSON lines.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates the parent directory of path and returns a sink.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		path = DefaultEventsPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create events directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Path returns the log file path.
func (s *FileSink) Path() string {
	return s.path
}

// Append writes r as one line.
func (s *FileSink) Append(r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}
