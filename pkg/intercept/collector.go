package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Appender is the durable destination the collector feeds. *EventLog
// implements it.
type Appender interface {
	Append(Envelope) error
}

// Collector is the single aggregation point of one build session. It
// accepts any number of concurrent reporter connections, decodes
// envelope frames as they arrive, and funnels every decoded envelope
// through one writer goroutine so appends never interleave. Accepting
// and decoding run fully in parallel; only the append is serialized.
type Collector struct {
	listener    net.Listener
	sink        Appender
	logger      *slog.Logger
	readTimeout time.Duration

	events   chan Envelope
	received atomic.Uint64

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	connWG     sync.WaitGroup
	writerDone chan struct{}
}

// NewCollector starts listening on addr ("127.0.0.1:0" picks a free
// loopback port) and prepares the writer. readTimeout bounds how long a
// stalled connection may sit mid-frame; zero disables the bound.
func NewCollector(addr string, sink Appender, readTimeout time.Duration, logger *slog.Logger) (*Collector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Collector{
		listener:    ln,
		sink:        sink,
		logger:      logger,
		readTimeout: readTimeout,
		events:      make(chan Envelope, 256),
		conns:       make(map[net.Conn]struct{}),
		writerDone:  make(chan struct{}),
	}, nil
}

// Addr returns the actual listen address, for the hand-off to
// intercepted processes.
func (c *Collector) Addr() string {
	return c.listener.Addr().String()
}

// Serve runs the accept loop until the context is cancelled or the
// listener is closed by Shutdown.
func (c *Collector) Serve(ctx context.Context) error {
	go c.writeLoop()

	go func() {
		<-ctx.Done()
		c.listener.Close()
	}()

	c.logger.Info("collector listening", "addr", c.Addr())
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.logger.Error("accept failed", "err", err)
			continue
		}
		// Registration and the closed mark share one mutex, so a
		// connection accepted while Shutdown runs is either counted
		// before the drain wait or rejected here, never in between.
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			continue
		}
		c.conns[conn] = struct{}{}
		c.connWG.Add(1)
		c.mu.Unlock()
		go c.handleConn(conn)
	}
}

func (c *Collector) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		delete(c.conns, conn)
		c.mu.Unlock()
		c.connWG.Done()
	}()

	for {
		if c.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		env, err := ReadEnvelope(conn)
		if err != nil {
			// A malformed frame loses that one record; the
			// connection and every later frame stay alive.
			if errors.Is(err, ErrMalformedFrame) {
				c.logger.Warn("skipping malformed frame", "remote", conn.RemoteAddr().String(), "err", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("reporter connection dropped", "remote", conn.RemoteAddr().String(), "err", err)
			}
			return
		}
		c.received.Add(1)
		c.events <- env
	}
}

// writeLoop is the single writer: every append to the event log happens
// here, in arrival order.
func (c *Collector) writeLoop() {
	defer close(c.writerDone)
	for env := range c.events {
		if err := c.sink.Append(env); err != nil {
			c.logger.Error("append failed, event lost", "rid", uint64(env.RID), "err", err)
		}
	}
}

// Shutdown stops accepting, waits up to drain for open connections to
// finish, abandons any that remain (their in-flight event is lost), and
// flushes the writer. Safe to call once after the build has finished.
func (c *Collector) Shutdown(drain time.Duration) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.listener.Close()

	done := make(chan struct{})
	go func() {
		c.connWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drain):
		c.logger.Warn("shutdown deadline elapsed, abandoning open connections")
		c.mu.Lock()
		for conn := range c.conns {
			conn.Close()
		}
		c.mu.Unlock()
		<-done
	}

	close(c.events)
	<-c.writerDone
	c.logger.Info("collector stopped", "events", c.received.Load())
}
