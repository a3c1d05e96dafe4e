// Package testutil provides test doubles for the scanning daemon.
package testutil

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const eicarSignature = "EICAR-STANDARD-ANTIVIRUS-TEST-FILE"

// ClamdServer is a scriptable in-process clamd. It speaks the z-framed
// command protocol (INSTREAM, PING, VERSION) over a real TCP listener, so the
// client code under test exercises its production wire path.
type ClamdServer struct {
	ln net.Listener

	mu        sync.Mutex
	replyFunc func(payload []byte) string
	drops     int

	conns atomic.Int64
	scans atomic.Int64
}

// NewClamdServer starts a fake daemon on a loopback port and registers its
// shutdown with the test's cleanup.
func NewClamdServer(t *testing.T) *ClamdServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("start fake clamd: %v", err)
	}

	s := &ClamdServer{ln: ln}
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host and port the fake daemon listens on.
func (s *ClamdServer) Addr() (string, int) {
	addr := s.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// Close stops the listener. Connections in flight are abandoned.
func (s *ClamdServer) Close() {
	s.ln.Close()
}

// SetReply makes every subsequent scan answer with the given reply line.
func (s *ClamdServer) SetReply(line string) {
	s.SetReplyFunc(func([]byte) string { return line })
}

// SetReplyFunc computes the scan reply from the streamed payload.
func (s *ClamdServer) SetReplyFunc(fn func(payload []byte) string) {
	s.mu.Lock()
	s.replyFunc = fn
	s.mu.Unlock()
}

// DropNextScans makes the daemon close the connection instead of replying to
// the next n scans, simulating a mid-scan transport fault.
func (s *ClamdServer) DropNextScans(n int) {
	s.mu.Lock()
	s.drops = n
	s.mu.Unlock()
}

// Connections returns how many connections the daemon has accepted.
func (s *ClamdServer) Connections() int { return int(s.conns.Load()) }

// Scans returns how many INSTREAM payloads the daemon has received.
func (s *ClamdServer) Scans() int { return int(s.scans.Load()) }

func (s *ClamdServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.conns.Add(1)
		go s.serve(conn)
	}
}

func (s *ClamdServer) serve(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)

	for {
		cmd, err := br.ReadString(0)
		if err != nil {
			return
		}
		cmd = strings.Trim(cmd, "\x00")
		cmd = strings.TrimPrefix(cmd, "z")

		switch cmd {
		case "INSTREAM":
			payload, err := readChunks(br)
			if err != nil {
				return
			}
			s.scans.Add(1)
			if s.takeDrop() {
				return
			}
			if _, err := conn.Write([]byte(s.replyFor(payload) + "\x00")); err != nil {
				return
			}
		case "PING":
			conn.Write([]byte("PONG\x00")) //nolint:errcheck
		case "VERSION":
			conn.Write([]byte("ClamAV 1.4.2/27542/test\x00")) //nolint:errcheck
		default:
			conn.Write([]byte("UNKNOWN COMMAND\x00")) //nolint:errcheck
		}
	}
}

func (s *ClamdServer) replyFor(payload []byte) string {
	s.mu.Lock()
	fn := s.replyFunc
	s.mu.Unlock()

	if fn != nil {
		return fn(payload)
	}
	if bytes.Contains(payload, []byte(eicarSignature)) {
		return "stream: Eicar-Test-Signature FOUND"
	}
	return "stream: OK"
}

func (s *ClamdServer) takeDrop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drops > 0 {
		s.drops--
		return true
	}
	return false
}

func readChunks(br *bufio.Reader) ([]byte, error) {
	var payload []byte
	var hdr [4]byte
	for {
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(hdr[:])
		if n == 0 {
			return payload, nil
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, err
		}
		payload = append(payload, chunk...)
	}
}
