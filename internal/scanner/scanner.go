// Package scanner orchestrates virus scans over the clamd connection pool:
// it acquires a connection, streams the payload, classifies failures so
// broken connections are evicted rather than reused, normalizes the daemon's
// reply into a single verdict shape, and retries transient faults on fresh
// connections.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/clamd"
)

// Request is one immutable scan request.
type Request struct {
	// ID correlates logs across the request's lifetime. It is not part of the
	// wire protocol.
	ID string
	// Data is the payload to scan.
	Data []byte
}

// Scanner runs scans against the daemon through the pool. It is safe for
// concurrent use.
type Scanner struct {
	pool       *clamd.Pool
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	log        zerolog.Logger
}

// New creates a Scanner backed by the given pool.
func New(pool *clamd.Pool, opts ...Option) *Scanner {
	s := &Scanner{
		pool:       pool,
		timeout:    DefaultScanTimeout,
		retries:    DefaultScanRetries,
		retryDelay: DefaultRetryDelay,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPool builds a connection pool backed by the dialer, with creation
// failures surfaced in this package's error taxonomy.
func NewPool(d *clamd.Dialer, maxConns, maxQueue int, log zerolog.Logger) *clamd.Pool {
	factory := func(ctx context.Context) (*clamd.Conn, error) {
		c, err := d.Dial(ctx)
		if err != nil {
			return nil, NewDaemonUnavailableError("could not establish clamd connection", err)
		}
		return c, nil
	}
	return clamd.NewPool(factory, maxConns, maxQueue, log)
}

// Ready reports whether the pool has ever reached the daemon.
func (s *Scanner) Ready() bool { return s.pool.IsReady() }

// Diagnostics returns pool occupancy for health reporting.
func (s *Scanner) Diagnostics() clamd.PoolStats { return s.pool.Stats() }

// Scan performs a single scan attempt.
//
// A transport fault mid-scan evicts the connection and yields the
// connection_lost kind (timeout when the deadline expired); any other failure
// releases the connection back to the pool, since a daemon-level rejection
// does not make the session unusable.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, s.acquireError(err)
	}

	prepStart := time.Now()
	stream := bytes.NewReader(req.Data)
	prep := time.Since(prepStart)

	scanStart := time.Now()
	raw, err := conn.ScanStream(ctx, stream)
	scanTime := time.Since(scanStart)

	if err != nil {
		if fault, timedOut := isTransportFault(err); fault {
			// Never return a poisoned connection to idle.
			s.pool.Remove(conn)
			conn.Close()
			s.log.Warn().Err(err).Str("scan_id", req.ID).Int64("conn_id", conn.ID()).
				Msg("transport fault mid-scan, connection evicted")
			if timedOut {
				return nil, NewTimeoutError("scan timed out", err)
			}
			return nil, NewConnectionLostError("connection to clamd lost mid-scan", err)
		}
		s.pool.Release(conn)
		return nil, err
	}
	s.pool.Release(conn)

	res := interpret(raw)
	res.PrepTime = prep
	res.ScanTime = scanTime
	res.Elapsed = time.Since(start)

	s.log.Debug().Str("scan_id", req.ID).Int("bytes", len(req.Data)).
		Bool("infected", res.Infected).Bool("needs_fallback", res.NeedsFallback).
		Dur("scan_time", res.ScanTime).Msg("scan completed")
	return res, nil
}

// acquireError maps pool-level failures into the error taxonomy. Factory
// errors are already typed and pass through unchanged.
func (s *Scanner) acquireError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, clamd.ErrPoolExhausted):
		return NewPoolExhaustedError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("timed out waiting for a clamd connection", err)
	case errors.Is(err, context.Canceled):
		return NewTimeoutError("scan canceled while waiting for a clamd connection", err)
	}
	return NewDaemonUnavailableError("could not acquire clamd connection", err)
}

// isTransportFault reports whether err means the connection itself is
// unusable, and whether the cause was a deadline expiry. Everything else
// (daemon-level rejections, payload read errors) leaves the session intact.
func isTransportFault(err error) (fault, timedOut bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return true, true
	case errors.Is(err, context.Canceled):
		return true, false
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe):
		return true, false
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNABORTED):
		return true, false
	}

	var re *clamd.ReplyError
	if errors.As(err, &re) {
		return false, false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true, ne.Timeout()
	}
	return false, false
}
