package intercept

import (
	"fmt"
	"os"
	"sync"
)

// EventLog is the durable, append-only destination for captured
// envelopes. The file is a flat sequence of envelope frames with no
// header or index, so it may be truncated at any completed frame
// boundary without corrupting earlier records.
type EventLog struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// OpenEventLog opens (or creates) the log file for appending.
func OpenEventLog(path string) (*EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventLog{path: path, file: f}, nil
}

// Path returns the log file location.
func (l *EventLog) Path() string { return l.path }

// Append writes one envelope frame and syncs it to storage before
// returning. Appends are serialized so two frames never interleave.
func (l *EventLog) Append(env Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := WriteEnvelope(l.file, env); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
