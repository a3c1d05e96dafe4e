package scanner

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  &Error{Code: CodeConnectionLost, Message: "connection lost"},
			want: "connection lost",
		},
		{
			name: "with cause",
			err:  &Error{Code: CodeConnectionLost, Message: "connection lost", Cause: errors.New("broken pipe")},
			want: "connection lost: broken pipe",
		},
		{
			name: "with attempt count",
			err:  &Error{Code: CodeConnectionLost, Message: "connection lost", Attempts: 3},
			want: "connection lost (after 3 attempts)",
		},
		{
			name: "with attempt count and cause",
			err:  &Error{Code: CodeTimeout, Message: "scan timed out", Attempts: 2, Cause: errors.New("deadline")},
			want: "scan timed out (after 2 attempts): deadline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{Code: CodeTimeout, Message: "timed out", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	err2 := &Error{Code: CodeTimeout, Message: "timed out"}
	if err2.Unwrap() != nil {
		t.Error("Unwrap should return nil when no cause")
	}
}

func TestErrorAs(t *testing.T) {
	err := NewConnectionLostError("connection lost", nil)
	wrapped := fmt.Errorf("scan failed: %w", err)

	var target *Error
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find *Error")
	}
	if target.Code != CodeConnectionLost {
		t.Errorf("Code = %q, want %q", target.Code, CodeConnectionLost)
	}
}

func TestWithAttempts(t *testing.T) {
	cause := errors.New("broken pipe")
	orig := NewConnectionLostError("connection lost", cause)

	tagged := withAttempts(orig, 3)
	if tagged.Code != orig.Code || tagged.Message != orig.Message || tagged.Cause != cause {
		t.Error("withAttempts must leave code, message and cause unchanged")
	}
	if tagged.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", tagged.Attempts)
	}
	if orig.Attempts != 0 {
		t.Error("withAttempts must not mutate the original error")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"daemon unavailable", NewDaemonUnavailableError("down", nil), IsDaemonUnavailable, true},
		{"pool exhausted", NewPoolExhaustedError("busy"), IsPoolExhausted, true},
		{"connection lost", NewConnectionLostError("lost", nil), IsConnectionLost, true},
		{"protocol unsupported", NewProtocolUnsupportedError("mode"), IsProtocolUnsupported, true},
		{"timeout", NewTimeoutError("slow", nil), IsTimeout, true},
		{"wrapped still matches", fmt.Errorf("outer: %w", NewTimeoutError("slow", nil)), IsTimeout, true},
		{"wrong code", NewTimeoutError("slow", nil), IsConnectionLost, false},
		{"foreign error", errors.New("random"), IsPoolExhausted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate = %v, want %v", got, tt.want)
			}
		})
	}
}
