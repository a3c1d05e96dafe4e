package scanner

import (
	"context"
	"errors"
	"time"
)

// retryState drives ScanWithRetry. Modeling the loop as an explicit state
// machine keeps attempt counting and delay policy verifiable independently of
// the I/O in Scan.
type retryState int

const (
	stateAttempting retryState = iota
	stateBackoff
	stateSucceeded
	stateExhausted
)

// ScanWithRetry runs Scan, retrying transient transport faults up to the
// configured budget. Each retry runs on a brand-new connection: the faulted
// one has already been evicted by Scan. The backoff before retry n is
// n*retryDelay.
//
// A daemon that does not understand the streaming command is terminal, not
// transient: the result surfaces as protocol_unsupported immediately and is
// never retried under the same mode. The returned Result still carries
// NeedsFallback so the caller can distinguish "unscanned" from "clean".
//
// When the budget is exhausted, the last underlying error is returned
// unchanged except for being tagged with the total attempt count.
func (s *Scanner) ScanWithRetry(ctx context.Context, req Request) (*Result, error) {
	var (
		state   = stateAttempting
		attempt int
		lastErr *Error
		result  *Result
	)

	for {
		switch state {
		case stateAttempting:
			attempt++
			res, err := s.Scan(ctx, req)
			if err == nil {
				if res.NeedsFallback {
					s.log.Error().Str("scan_id", req.ID).
						Msg("clamd rejected the streaming command; check daemon mode")
					return res, NewProtocolUnsupportedError("clamd does not support the INSTREAM command")
				}
				result = res
				state = stateSucceeded
				continue
			}

			var serr *Error
			if !errors.As(err, &serr) || !retryable(serr) {
				return nil, err
			}
			lastErr = serr
			if attempt > s.retries {
				state = stateExhausted
				continue
			}
			state = stateBackoff

		case stateBackoff:
			delay := time.Duration(attempt) * s.retryDelay
			s.log.Warn().Str("scan_id", req.ID).Int("attempt", attempt).Dur("delay", delay).
				Str("code", lastErr.Code).Msg("retrying scan on a fresh connection")
			select {
			case <-ctx.Done():
				return nil, withAttempts(lastErr, attempt)
			case <-time.After(delay):
			}
			state = stateAttempting

		case stateSucceeded:
			return result, nil

		case stateExhausted:
			return nil, withAttempts(lastErr, attempt)
		}
	}
}

// retryable reports whether a scan may succeed on a fresh connection.
func retryable(e *Error) bool {
	return e.Code == CodeConnectionLost || e.Code == CodeTimeout
}
