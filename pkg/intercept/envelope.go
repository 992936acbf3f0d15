// Package intercept implements the capture side of buildlens: the data
// model for observed process executions, the self-framing envelope
// codec, the per-process Reporter, the Collector that funnels every
// reporter into one append-only event log, and the Source that reads a
// finished log back.
package intercept

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrMalformedFrame reports a completely read frame whose payload is
// not a valid envelope. The stream is positioned at the next frame, so
// the caller may skip the record and keep reading.
var ErrMalformedFrame = errors.New("malformed envelope frame")

// ReporterID identifies one reporting process for the lifetime of that
// process. OS process ids are recycled within a single build, so a
// 64-bit random value is drawn once instead.
type ReporterID uint64

// NewReporterID draws a ReporterID from a high-entropy random source.
func NewReporterID() (ReporterID, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generate reporter id: %w", err)
	}
	return ReporterID(binary.BigEndian.Uint64(b[:])), nil
}

// ProcessID is the OS-assigned process identifier. It is a hint only;
// it is not unique over the life of a build.
type ProcessID uint32

// Execution is an immutable record of one program invocation. It holds
// only what is needed to reproduce the invocation, nothing about its
// outcome. Duplicates are legal and meaningful.
type Execution struct {
	Executable  string            `json:"executable"`
	Arguments   []string          `json:"arguments"`
	WorkingDir  string            `json:"working_dir"`
	Environment map[string]string `json:"environment"`
}

// Event records that a process ran an execution.
type Event struct {
	PID       ProcessID `json:"pid"`
	Execution Execution `json:"execution"`
}

// Envelope is the unit transmitted and persisted: one event, stamped
// with the reporter identity and a millisecond epoch timestamp. The
// timestamps of different reporters come from independent clocks and
// must not be used to infer execution order.
type Envelope struct {
	RID       ReporterID `json:"rid"`
	Timestamp uint64     `json:"timestamp"`
	Event     Event      `json:"event"`
}

// NewEnvelope wraps an event with the reporter identity and the current
// wall-clock time.
func NewEnvelope(rid ReporterID, event Event) Envelope {
	return Envelope{
		RID:       rid,
		Timestamp: uint64(time.Now().UnixMilli()),
		Event:     event,
	}
}

// The wire format is a flat sequence of frames, each a 4-byte
// big-endian payload length followed by that many bytes of UTF-8 JSON.
// The same framing serves the live reporter connection and the
// persisted event log, so a log is simply concatenated frames.

// WriteEnvelope encodes one envelope as a single frame. It returns the
// payload length written, or an error on marshal failure or any short
// write.
func WriteEnvelope(w io.Writer, env Envelope) (int, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("encode envelope: %w", err)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return 0, fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return 0, fmt.Errorf("write frame payload: %w", err)
	}
	return len(payload), nil
}

// ReadEnvelope decodes one frame. It returns io.EOF only when the
// stream ends exactly on a frame boundary; a stream that ends inside a
// frame yields io.ErrUnexpectedEOF. A frame whose payload is not a
// valid envelope yields ErrMalformedFrame. Any other read failure is
// returned wrapped, so callers can tell a failing reader from a
// truncated stream.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Envelope{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Envelope{}, io.ErrUnexpectedEOF
		}
		return Envelope{}, fmt.Errorf("read frame length: %w", err)
	}
	length := binary.BigEndian.Uint32(prefix[:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Envelope{}, io.ErrUnexpectedEOF
		}
		return Envelope{}, fmt.Errorf("read frame payload: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

// NewProcessEvent captures the calling process around one invocation:
// its pid, working directory and environment.
func NewProcessEvent(executable string, arguments []string) Event {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	return Event{
		PID: ProcessID(os.Getpid()),
		Execution: Execution{
			Executable:  executable,
			Arguments:   arguments,
			WorkingDir:  wd,
			Environment: environMap(),
		},
	}
}

// environMap converts the process environment into the execution
// environment mapping.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				env[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return env
}
