package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/clamd"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/scanner"
	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/version"
)

// handleScan accepts a multipart upload under the "file" field.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	// Slack over the ceiling covers multipart framing; the payload itself is
	// checked precisely below.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		if maxBytesExceeded(err) {
			s.writeTooLarge(w)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "ERROR", Message: "Provide a single file"})
		return
	}
	defer file.Close()

	if header.Size > s.maxFileSize {
		s.writeTooLarge(w)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "ERROR", Message: "failed to read file data"})
		return
	}

	s.scan(w, r, data, header.Filename)
}

// handleStreamScan accepts a raw octet-stream body with a known length.
func (s *Server) handleStreamScan(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "ERROR", Message: "size must be greater than 0"})
		return
	}
	if r.ContentLength > s.maxFileSize {
		s.writeTooLarge(w)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxFileSize))
	if err != nil {
		if maxBytesExceeded(err) {
			s.writeTooLarge(w)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "ERROR", Message: "failed to read request body"})
		return
	}

	s.scan(w, r, data, "stream")
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request, data []byte, filename string) {
	req := scanner.Request{ID: requestID(r.Context()), Data: data}

	res, err := s.svc.ScanWithRetry(r.Context(), req)
	if err != nil {
		s.writeScanError(w, req.ID, err)
		return
	}

	resp := ScanResponse{
		Status:   "OK",
		ScanTime: res.Elapsed.Seconds(),
		Filename: filename,
	}
	if res.Infected {
		resp.Status = "FOUND"
		resp.Message = strings.Join(res.Threats, ", ")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	d := s.svc.Diagnostics()
	resp := HealthResponse{
		Message: "ok",
		Pool:    PoolDiagnostics{Size: d.Size, InUse: d.InUse, Queued: d.Queued},
	}
	if !s.svc.Ready() {
		resp.Message = "clamd unavailable"
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: version.Version,
		Commit:  version.GitCommit,
		Build:   version.BuildDate,
	})
}

// writeScanError maps scan failures onto HTTP statuses: backpressure is 503,
// deadline expiry 504, daemon trouble 502, anything else 500.
func (s *Server) writeScanError(w http.ResponseWriter, id string, err error) {
	s.log.Error().Err(err).Str("request_id", id).Msg("scan failed")

	var serr *scanner.Error
	if errors.As(err, &serr) {
		statusCode := http.StatusBadGateway
		switch serr.Code {
		case scanner.CodePoolExhausted:
			statusCode = http.StatusServiceUnavailable
		case scanner.CodeTimeout:
			statusCode = http.StatusGatewayTimeout
		}
		writeJSON(w, statusCode, errorResponse{Status: "ERROR", Message: serr.Error()})
		return
	}

	var re *clamd.ReplyError
	if errors.As(err, &re) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "ERROR", Message: re.Line})
		return
	}

	writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "ERROR", Message: "internal scan error"})
}

func (s *Server) writeTooLarge(w http.ResponseWriter) {
	writeJSON(w, http.StatusRequestEntityTooLarge,
		errorResponse{Status: "ERROR", Message: "file exceeds the maximum allowed size"})
}

func maxBytesExceeded(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
