package scanner

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults for scan orchestration.
const (
	// DefaultScanTimeout bounds one scan attempt, stream submission and daemon
	// reply included.
	DefaultScanTimeout = 5 * time.Minute
	// DefaultScanRetries is the number of retries after a transient fault.
	DefaultScanRetries = 2
	// DefaultRetryDelay is the base delay between retries, scaled by attempt.
	DefaultRetryDelay = time.Second
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithTimeout sets the per-scan wall-clock timeout.
// Non-positive durations are ignored (no-op).
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries sets how many times a transiently-failed scan is retried.
// Negative counts are ignored (no-op).
func WithRetries(n int) Option {
	return func(s *Scanner) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithRetryDelay sets the base delay between retries.
// Non-positive durations are ignored (no-op).
func WithRetryDelay(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithLogger sets the scanner's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) {
		s.log = l
	}
}
