package query

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

// Kind classifies a fetch failure. The kind decides retry eligibility;
// consumers only ever see Message.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindTimeout
	KindServer
	KindClient
	KindApplication
	KindDecode
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindClient:
		return "client"
	case KindApplication:
		return "application"
	case KindDecode:
		return "decode"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// DefaultMessage is surfaced when a failure carries no message of its own.
const DefaultMessage = "an error occurred"

var (
	// ErrClientClosed is returned by operations on a client after Shutdown.
	ErrClientClosed = errors.New("query: client closed")

	// ErrQueryClosed is returned when starting a query that was torn down.
	ErrQueryClosed = errors.New("query: closed")
)

// Error is a classified fetch failure.
type Error struct {
	Kind   Kind
	Status int // HTTP status for Server and Client kinds
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// TransportError wraps a network-level failure.
func TransportError(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// TimeoutError reports an attempt that exceeded its time bound.
func TimeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Msg: "request timeout", Err: err}
}

// StatusError classifies a non-2xx HTTP status: 5xx is a server failure,
// anything else a client failure.
func StatusError(status int) *Error {
	kind := KindClient
	if status >= 500 {
		kind = KindServer
	}
	return &Error{
		Kind:   kind,
		Status: status,
		Msg:    fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status)),
	}
}

// ApplicationError reports a well-formed response signalling logical failure.
func ApplicationError(msg string) *Error {
	return &Error{Kind: KindApplication, Msg: msg}
}

// DecodeError reports a response body that could not be decoded.
func DecodeError(err error) *Error {
	return &Error{Kind: KindDecode, Msg: "decode response: " + err.Error(), Err: err}
}

var errCircuitOpen = &Error{Kind: KindCircuitOpen, Msg: "circuit breaker open"}

// KindOf returns the kind of err, or KindUnknown when it is unclassified.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindUnknown
}

// Retryable reports whether a fetch failing with err should be attempted
// again. Transport, timeout and server failures retry, as do errors nobody
// classified. Caller cancellation and backoff.Permanent never retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClientClosed) {
		return false
	}
	switch KindOf(err) {
	case KindClient, KindApplication, KindDecode, KindCircuitOpen:
		return false
	}
	return true
}

// Message normalises err to the single string consumers see.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) && perm.Err != nil {
		err = perm.Err
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultMessage
}
