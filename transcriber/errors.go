package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind int

const (
	AuthFailure ErrorKind = iota
	NetworkFailure
	Timeout
	MalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case AuthFailure:
		return "auth_failure"
	case NetworkFailure:
		return "network_failure"
	case Timeout:
		return "timeout"
	case MalformedResponse:
		return "malformed_response"
	}
	return "unknown"
}

// Error carries a technical detail for the diagnostics log and a short
// user-facing message for the display layer.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) UserMessage() string {
	switch e.Kind {
	case AuthFailure:
		return "Transcription rejected: check your API key"
	case Timeout:
		return "Transcription timed out"
	case MalformedResponse:
		return "Transcription service returned garbage"
	default:
		return "Transcription failed: network error"
	}
}

func newError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// classify maps a transport-level failure to the taxonomy. Context
// deadline and net timeouts become Timeout, the rest NetworkFailure.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(Timeout, "request deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(Timeout, "network timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(NetworkFailure, "request canceled", err)
	}
	return newError(NetworkFailure, "request failed", err)
}

// statusError maps a non-200 HTTP response to the taxonomy.
func statusError(provider string, status int, body []byte) *Error {
	detail := fmt.Sprintf("%s API error %d: %s", provider, status, truncate(body, 200))
	switch status {
	case 401, 403:
		return newError(AuthFailure, detail, nil)
	default:
		return newError(NetworkFailure, detail, nil)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
