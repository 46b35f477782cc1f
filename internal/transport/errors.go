package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a transport failure for the retry policy and user message.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindOffline        Kind = "offline"
	KindServerRejected Kind = "server_rejected"
	KindRateLimited    Kind = "rate_limited"
	KindUnknown        Kind = "unknown"
)

// Error is a failed transport attempt. ServerRejected means the backend
// refused the submitted data; retrying the same data cannot succeed.
type Error struct {
	Kind       Kind
	Status     int
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying failure.
func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	return e.Kind != KindServerRejected
}

// UserMessage is the message surfaced to the requesting officer.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindOffline:
		return "You appear to be offline. Your draft has been saved; reconnect and resubmit."
	case KindTimeout:
		return "The submission timed out. Your draft has been saved; please try again."
	case KindServerRejected:
		return "The backend rejected the submission. Please review the form and resubmit."
	case KindRateLimited:
		return "The backend is busy. Your draft has been saved; please try again shortly."
	}
	return "The submission failed. Your draft has been saved; please try again."
}

// classifyStatus maps an HTTP response status to a transport error, or nil
// for success.
func classifyStatus(status int, header http.Header) *Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return &Error{
			Kind:       KindRateLimited,
			Status:     status,
			RetryAfter: parseRetryAfter(header),
			Err:        fmt.Errorf("rate limited"),
		}
	case status >= 400 && status < 500:
		return &Error{
			Kind:   KindServerRejected,
			Status: status,
			Err:    fmt.Errorf("request rejected"),
		}
	case status == http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Status: status, Err: fmt.Errorf("gateway timeout")}
	}
	return &Error{Kind: KindUnknown, Status: status, Err: fmt.Errorf("unexpected status")}
}

// classifyErr maps a connection-level failure to a transport error.
func classifyErr(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindOffline, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindOffline, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
