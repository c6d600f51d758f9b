// Package errs holds the error taxonomy shared by the gateway, the REST
// transport and the rate limiter.
//
// Every error the library returns either is, or wraps, an *Error. Callers
// decide what to do with IsRetryable and RetryAfter rather than matching on
// concrete error strings.
package errs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	// Socket/HTTP connectivity failures, timeouts, DNS errors.
	KindTransport
	// Malformed frames, unexpected op codes, decode failures.
	KindProtocol
	// Credentials rejected by the server.
	KindAuthentication
	// Server- or client-side quota exceeded.
	KindRateLimit
	// Server rejected a resume.
	KindSessionInvalid
	// Invariant violations and unrecoverable server verdicts.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindSessionInvalid:
		return "session_invalid"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "rest.Call" or "gateway.identify".
	Op string
	// Status is the HTTP status code or the gateway close code, zero when absent.
	Status int
	// Code is the JSON error code from the API body, zero when absent.
	Code int
	// RetryAfter is the server-indicated delay before retrying, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the operation can succeed without
// outside intervention.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindRateLimit, KindSessionInvalid:
		return true
	}
	return false
}

// RetryAfterHint returns the server-indicated delay, if any.
func (e *Error) RetryAfterHint() (time.Duration, bool) {
	return e.RetryAfter, e.RetryAfter > 0
}

// KindOf returns the kind of the outermost *Error in err's chain.
// Bare network errors classify as transport.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable classifies any error. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfterHint()
	}
	return 0, false
}

// APIError is the JSON body the HTTP API sends alongside 4xx responses.
type APIError struct {
	Message string          `json:"message"`
	Code    int             `json:"code"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

func (a *APIError) Error() string {
	if a.Code == 0 {
		return a.Message
	}
	return fmt.Sprintf("%s (code %d)", a.Message, a.Code)
}

// Known JSON error codes.
const (
	CodeUnknownChannel    = 10003
	CodeUnknownMessage    = 10008
	CodeUnknownVoiceState = 10065
	CodeMissingAccess     = 50001
	CodeMissingPermission = 50013
)
