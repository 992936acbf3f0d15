package intercept

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// ReporterAddressEnv is the well-known environment variable that hands
// the collector endpoint to intercepted processes. It is read only at
// the process-exec boundary (the wrapper binary); internal wiring
// passes the address explicitly.
const ReporterAddressEnv = "BUILDLENS_REPORTER_ADDRESS"

// Reporter announces the executions of one intercepted process to the
// collector. Each process owns exactly one Reporter for its lifetime.
//
// A failed report must never fail the intercepted program itself; the
// caller is expected to log the returned error and proceed.
type Reporter struct {
	rid  ReporterID
	addr string

	mu          sync.Mutex
	conn        net.Conn
	dialTimeout time.Duration
}

// NewReporter creates a reporter with a fresh process-lifetime identity
// talking to the collector at addr.
func NewReporter(addr string) (*Reporter, error) {
	rid, err := NewReporterID()
	if err != nil {
		return nil, err
	}
	return &Reporter{
		rid:         rid,
		addr:        addr,
		dialTimeout: 5 * time.Second,
	}, nil
}

// ID returns the reporter's process-lifetime identity.
func (r *Reporter) ID() ReporterID { return r.rid }

// Report wraps the event into an envelope stamped with the reporter
// identity and the current time, and writes it as one frame to the
// collector, reusing the connection across calls. A connect or write
// failure is returned as a transport failure.
func (r *Reporter) Report(event Event) error {
	env := NewEnvelope(r.rid, event)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		conn, err := net.DialTimeout("tcp", r.addr, r.dialTimeout)
		if err != nil {
			return fmt.Errorf("dial collector %s: %w", r.addr, err)
		}
		r.conn = conn
	}

	if _, err := WriteEnvelope(r.conn, env); err != nil {
		// Drop the connection so the next report redials.
		r.conn.Close()
		r.conn = nil
		return fmt.Errorf("report to collector %s: %w", r.addr, err)
	}
	return nil
}

// Close releases the reporter's connection, if any.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
