package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/clamd"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/testutil"
)

func TestScanWithRetryRecoversFromTransportFault(t *testing.T) {
	srv := testutil.NewClamdServer(t)
	srv.DropNextScans(1)
	s, pool := newTestScanner(t, srv)

	res, err := s.ScanWithRetry(context.Background(), Request{ID: "r1", Data: []byte("doc")})
	require.NoError(t, err)
	assert.False(t, res.Infected)

	assert.Equal(t, 2, srv.Connections(), "retry must run on a fresh connection")
	assert.Equal(t, 1, pool.Stats().Size, "the faulted connection stays evicted")
}

func TestScanWithRetryExhaustsBudget(t *testing.T) {
	srv := testutil.NewClamdServer(t)
	srv.DropNextScans(100)
	s, _ := newTestScanner(t, srv, WithRetries(2))

	_, err := s.ScanWithRetry(context.Background(), Request{ID: "r2", Data: []byte("doc")})
	require.Error(t, err)
	assert.True(t, IsConnectionLost(err), "got %v", err)

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 3, serr.Attempts, "budget of 2 retries means 3 attempts")
	assert.Equal(t, 3, srv.Scans(), "no attempt beyond the budget")
}

func TestScanWithRetryZeroBudget(t *testing.T) {
	srv := testutil.NewClamdServer(t)
	srv.DropNextScans(100)
	s, _ := newTestScanner(t, srv, WithRetries(0))

	_, err := s.ScanWithRetry(context.Background(), Request{ID: "r3", Data: []byte("doc")})
	require.Error(t, err)

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 1, serr.Attempts)
	assert.Equal(t, 1, srv.Scans())
}

func TestScanWithRetryProtocolUnsupportedIsTerminal(t *testing.T) {
	srv := testutil.NewClamdServer(t)
	srv.SetReply("UNKNOWN COMMAND")
	s, _ := newTestScanner(t, srv, WithRetries(2))

	res, err := s.ScanWithRetry(context.Background(), Request{ID: "r4", Data: []byte("doc")})
	require.Error(t, err)
	assert.True(t, IsProtocolUnsupported(err), "got %v", err)
	assert.Equal(t, 1, srv.Scans(), "a daemon mode mismatch must never be retried")

	// The result still marks the payload as unscanned, never as clean.
	require.NotNil(t, res)
	assert.True(t, res.NeedsFallback)
	assert.False(t, res.Infected)
	assert.Empty(t, res.Threats)
}

func TestScanWithRetryDoesNotRetryDaemonRejection(t *testing.T) {
	srv := testutil.NewClamdServer(t)
	srv.SetReply("INSTREAM size limit exceeded. ERROR")
	s, _ := newTestScanner(t, srv, WithRetries(2))

	_, err := s.ScanWithRetry(context.Background(), Request{ID: "r5", Data: []byte("doc")})
	require.Error(t, err)
	var re *clamd.ReplyError
	assert.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, 1, srv.Scans())
}

func TestScanWithRetrySuccessFirstTry(t *testing.T) {
	srv := testutil.NewClamdServer(t)
	s, _ := newTestScanner(t, srv)

	res, err := s.ScanWithRetry(context.Background(), Request{ID: "r6", Data: []byte(eicarPayload)})
	require.NoError(t, err)
	assert.True(t, res.Infected)
	assert.Equal(t, []string{"Eicar-Test-Signature"}, res.Threats)
	assert.Equal(t, 1, srv.Scans())
}
