package intercept

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// ErrTruncatedFrame reports a partial trailing frame in an event log.
// Everything decoded before it is still valid; the stream just ends
// early.
var ErrTruncatedFrame = errors.New("truncated frame at end of event log")

// Source is a lazy, forward-only decoder over a finished event log. It
// is not restartable mid-stream; a fresh pass requires opening a new
// Source.
type Source struct {
	file      *os.File
	reader    *bufio.Reader
	logger    *slog.Logger
	done      bool
	truncated bool
}

// OpenSource opens an event log file for a single sequential pass.
func OpenSource(path string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &Source{
		file:   f,
		reader: bufio.NewReader(f),
		logger: logger,
	}, nil
}

// Read returns the next envelope. It returns io.EOF when the log ends
// cleanly on a frame boundary. A partial trailing frame ends the stream
// with ErrTruncatedFrame exactly once (io.EOF afterwards); every record
// before it has already been delivered. A malformed frame is that one
// record's error (ErrMalformedFrame); the caller may skip it and keep
// reading. Any other failure is a resource error and ends the stream.
func (s *Source) Read() (Envelope, error) {
	if s.done {
		return Envelope{}, io.EOF
	}
	env, err := ReadEnvelope(s.reader)
	switch {
	case err == nil:
		return env, nil
	case errors.Is(err, io.EOF):
		s.done = true
		return Envelope{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		s.truncated = true
		s.logger.Warn("event log ends mid-frame, trailing bytes ignored", "path", s.file.Name())
		return Envelope{}, ErrTruncatedFrame
	case errors.Is(err, ErrMalformedFrame):
		return Envelope{}, err
	default:
		s.done = true
		return Envelope{}, fmt.Errorf("read event log %s: %w", s.file.Name(), err)
	}
}

// Truncated reports whether the log ended with a partial frame.
func (s *Source) Truncated() bool { return s.truncated }

// Close releases the underlying file.
func (s *Source) Close() error {
	return s.file.Close()
}
