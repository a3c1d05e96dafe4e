// Package clamd implements the client side of the clamd wire protocol and the
// bounded connection pool that owns every live daemon session.
//
// Commands are sent in the z-framed form ("zINSTREAM\x00") and replies are read
// up to the terminating NUL. Payloads are streamed as 4-byte big-endian
// length-prefixed chunks followed by a zero-length terminator, so no payload
// larger than the uint32 framing can address may reach this layer.
package clamd

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	replyDelim = '\x00'
	chunkSize  = 64 << 10
)

// Conn is a single established session to the clamd daemon.
//
// A Conn is owned by the pool for its whole lifetime and is handed to at most
// one scan at a time; it is not safe for concurrent use.
type Conn struct {
	id int64
	nc net.Conn
	br *bufio.Reader
}

// ID returns the connection's process-unique identifier, used for tracing.
func (c *Conn) ID() int64 { return c.id }

// Close tears down the underlying transport.
func (c *Conn) Close() error { return c.nc.Close() }

// ScanStream submits the payload read from r to the daemon via INSTREAM and
// returns the parsed reply.
//
// Transport failures are returned as-is so the caller can classify them; a
// daemon-level rejection (for example a size limit) is returned as *ReplyError
// and leaves the connection usable. An unrecognized-command reply is not an
// error here: it is reported through RawResult.UnknownCommand.
func (c *Conn) ScanStream(ctx context.Context, r io.Reader) (*RawResult, error) {
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}

	if _, err := c.nc.Write([]byte("zINSTREAM\x00")); err != nil {
		return nil, err
	}

	var hdr [4]byte
	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(hdr[:], uint32(n))
			if _, err := c.nc.Write(hdr[:]); err != nil {
				return nil, err
			}
			if _, err := c.nc.Write(buf[:n]); err != nil {
				return nil, err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("read payload: %w", rerr)
		}
	}

	// Zero-length chunk terminates the stream.
	binary.BigEndian.PutUint32(hdr[:], 0)
	if _, err := c.nc.Write(hdr[:]); err != nil {
		return nil, err
	}

	reply, err := c.readReply()
	if err != nil {
		return nil, err
	}

	res := ParseScanReply(reply)
	if !res.UnknownCommand && strings.HasSuffix(reply, "ERROR") {
		return nil, &ReplyError{Line: reply}
	}
	return res, nil
}

// Ping checks daemon liveness on this session.
func (c *Conn) Ping(ctx context.Context) error {
	reply, err := c.command(ctx, "PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("unexpected PING reply %q", reply)
	}
	return nil
}

// Version returns the daemon's version banner.
func (c *Conn) Version(ctx context.Context) (string, error) {
	return c.command(ctx, "VERSION")
}

func (c *Conn) command(ctx context.Context, cmd string) (string, error) {
	if err := c.applyDeadline(ctx); err != nil {
		return "", err
	}
	if _, err := c.nc.Write([]byte("z" + cmd + "\x00")); err != nil {
		return "", err
	}
	return c.readReply()
}

func (c *Conn) applyDeadline(ctx context.Context) error {
	if d, ok := ctx.Deadline(); ok {
		return c.nc.SetDeadline(d)
	}
	return c.nc.SetDeadline(time.Time{})
}

func (c *Conn) readReply() (string, error) {
	s, err := c.br.ReadString(replyDelim)
	if err != nil {
		// Some daemons close the socket right after the final reply.
		if err != io.EOF || s == "" {
			return "", err
		}
	}
	return strings.TrimRight(s, "\x00\n "), nil
}

// ReplyError is a daemon-level rejection of a scan, such as a size limit, as
// opposed to a transport fault. The connection remains usable afterwards.
type ReplyError struct {
	Line string
}

func (e *ReplyError) Error() string { return "clamd: " + e.Line }

var connSeq atomic.Int64

// Dialer establishes clamd sessions against a fixed host and port, retrying a
// bounded number of times with linearly increasing backoff between attempts.
type Dialer struct {
	Host string
	Port int
	// Attempts is the number of connection attempts before giving up.
	Attempts int
	// Backoff is the base delay; the wait after attempt n is n*Backoff.
	Backoff time.Duration
	Log     zerolog.Logger
}

// Dial establishes a new daemon session. On failure it returns the last
// underlying error wrapped with the attempt count.
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	attempts := d.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * d.Backoff):
			}
		}

		var nd net.Dialer
		nc, err := nd.DialContext(ctx, "tcp", addr)
		if err == nil {
			c := &Conn{id: connSeq.Add(1), nc: nc, br: bufio.NewReader(nc)}
			d.Log.Debug().Int64("conn_id", c.id).Str("addr", addr).Int("attempt", attempt).
				Msg("connected to clamd")
			return c, nil
		}
		lastErr = err
		d.Log.Debug().Err(err).Str("addr", addr).Int("attempt", attempt).
			Msg("clamd connection attempt failed")
	}

	return nil, fmt.Errorf("connect to clamd at %s failed after %d attempts: %w", addr, attempts, lastErr)
}
