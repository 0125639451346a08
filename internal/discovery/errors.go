package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorKind buckets failures into the handling classes the orchestrator and
// retry policy understand.
type ErrorKind string

// Supported error kinds.
const (
	KindValidation    ErrorKind = "validation"
	KindRateLimit     ErrorKind = "rate_limit"
	KindBackpressure  ErrorKind = "backpressure"
	KindTimeout       ErrorKind = "timeout"
	KindConnection    ErrorKind = "connection"
	KindBrowser       ErrorKind = "browser"
	KindSourceBlocked ErrorKind = "source_blocked"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindDatabase      ErrorKind = "database"
	KindJob           ErrorKind = "job_processing"
)

// Error carries a kind plus an optional operational flag. Operational errors
// are expected runtime conditions and may be retried; programmer errors are
// not.
type Error struct {
	Kind        ErrorKind
	Operational bool
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind. Rate-limit, timeout, connection, database
// and job errors are operational by construction.
func NewError(kind ErrorKind, err error) *Error {
	operational := false
	switch kind {
	case KindRateLimit, KindBackpressure, KindTimeout, KindConnection,
		KindDatabase, KindJob, KindQuotaExceeded:
		operational = true
	}
	return &Error{Kind: kind, Operational: operational, Err: err}
}

// Errorf is NewError with formatting.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return NewError(kind, fmt.Errorf(format, args...))
}

// KindOf extracts the kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsRateLimit reports whether err signals provider or site throttling.
// Rate-limit errors are explicitly non-retryable: the caller must fall back
// to another source instead of hammering the same one.
func IsRateLimit(err error) bool {
	if KindOf(err) == KindRateLimit {
		return true
	}
	msg := strings.ToLower(errText(err))
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

// IsTransientNetwork reports whether err looks like a recoverable network
// failure (reset, timeout, refused, hung up).
func IsTransientNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(errText(err))
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"socket hang up",
		"i/o timeout",
		"unexpected eof",
		"broken pipe",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsRetryable implements the retry classification of the discovery engine:
// rate-limit never, network-transient always, everything else only when
// marked operational.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsRateLimit(err) {
		return false
	}
	if IsTransientNetwork(err) {
		return true
	}
	var de *Error
	if errors.As(err, &de) {
		switch de.Kind {
		case KindValidation, KindSourceBlocked, KindQuotaExceeded, KindBackpressure:
			return false
		}
		return de.Operational
	}
	return false
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
