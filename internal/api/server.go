// Package api exposes the scan core over HTTP: multipart and streaming scan
// endpoints plus health and version reporting.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/clamd"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/scanner"
)

// ScanService is the scan core as consumed by the HTTP layer.
type ScanService interface {
	ScanWithRetry(ctx context.Context, req scanner.Request) (*scanner.Result, error)
	Ready() bool
	Diagnostics() clamd.PoolStats
}

// Server serves the scan API.
type Server struct {
	svc         ScanService
	maxFileSize int64
	log         zerolog.Logger
	httpServer  *http.Server
}

// NewServer creates the API server listening on addr. maxFileSize is the
// payload ceiling in bytes, enforced before the scan core is invoked.
func NewServer(addr string, svc ScanService, maxFileSize int64, log zerolog.Logger) *Server {
	s := &Server{
		svc:         svc,
		maxFileSize: maxFileSize,
		log:         log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("POST /api/stream-scan", s.handleStreamScan)
	mux.HandleFunc("GET /api/health-check", s.handleHealthCheck)
	mux.HandleFunc("GET /api/version", s.handleVersion)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("API server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}
