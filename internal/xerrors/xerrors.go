// Package xerrors provides an error type that wraps an optional cause (and
// works with the standard errors.Is/errors.As through Unwrap) while
// additionally carrying a taxonomy kind and a log severity, so a caller at
// the edge (the server, a filter chain) can decide what to do with a
// failure without resorting to type switches on sentinel values.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure per the error taxonomy.
type Kind int

const (
	// KindUnspecified is used for errors that don't fit the taxonomy below,
	// typically ones bubbling up from a Base() call around a stdlib error.
	KindUnspecified Kind = iota
	// KindInvalidConfig is a configuration parse or validation failure.
	KindInvalidConfig
	// KindInvalidDnsEndpoint is an unparseable endpoint string.
	KindInvalidDnsEndpoint
	// KindMalformedMessage is a wire-level decode failure.
	KindMalformedMessage
	// KindTimeout is a per-request deadline elapsed.
	KindTimeout
	// KindNetworkFailure wraps a bind/connect/read/write/TLS error.
	KindNetworkFailure
	// KindResolveNothing means upstream returned no usable answer.
	KindResolveNothing
	// KindInternal wraps an unexpected error (bug signal).
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "InvalidConfig"
	case KindInvalidDnsEndpoint:
		return "InvalidDnsEndpoint"
	case KindMalformedMessage:
		return "MalformedMessage"
	case KindTimeout:
		return "Timeout"
	case KindNetworkFailure:
		return "NetworkFailure"
	case KindResolveNothing:
		return "ResolveNothing"
	case KindInternal:
		return "Internal"
	default:
		return "Unspecified"
	}
}

// Severity is a log level attached to an Error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// Error is an error with a taxonomy Kind, a Severity, and an optional
// wrapped cause.
type Error struct {
	kind     Kind
	severity Severity
	message  string
	inner    error
}

// New creates an Error with KindInternal and SeverityError by default;
// use the chainable setters to refine.
func New(args ...interface{}) *Error {
	return &Error{
		kind:     KindInternal,
		severity: SeverityError,
		message:  fmt.Sprint(args...),
	}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(format string, args ...interface{}) *Error {
	return &Error{
		kind:     KindInternal,
		severity: SeverityError,
		message:  fmt.Sprintf(format, args...),
	}
}

// Base attaches an underlying cause.
func (e *Error) Base(cause error) *Error {
	e.inner = cause
	return e
}

// WithKind sets the taxonomy kind.
func (e *Error) WithKind(k Kind) *Error {
	e.kind = k
	return e
}

// AtDebug sets severity to Debug.
func (e *Error) AtDebug() *Error { e.severity = SeverityDebug; return e }

// AtInfo sets severity to Info.
func (e *Error) AtInfo() *Error { e.severity = SeverityInfo; return e }

// AtWarning sets severity to Warning.
func (e *Error) AtWarning() *Error { e.severity = SeverityWarning; return e }

// AtError sets severity to Error.
func (e *Error) AtError() *Error { e.severity = SeverityError; return e }

// Kind returns the taxonomy kind.
func (e *Error) Kind() Kind { return e.kind }

// Severity returns the log severity.
func (e *Error) Severity() Severity { return e.severity }

// Error implements error.
func (e *Error) Error() string {
	msg := e.message
	if e.kind != KindUnspecified && e.kind != KindInternal {
		msg = "[" + e.kind.String() + "] " + msg
	}
	if e.inner != nil {
		msg = msg + " > " + e.inner.Error()
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface.
func (e *Error) Unwrap() error { return e.inner }

// KindOf extracts the Kind of err if it is (or wraps) an *Error, otherwise
// KindUnspecified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnspecified
}

// Helper constructors for the common taxonomy members.

func InvalidConfig(args ...interface{}) *Error {
	return New(args...).WithKind(KindInvalidConfig).AtError()
}

func InvalidDnsEndpoint(args ...interface{}) *Error {
	return New(args...).WithKind(KindInvalidDnsEndpoint).AtError()
}

func MalformedMessage(args ...interface{}) *Error {
	return New(args...).WithKind(KindMalformedMessage).AtWarning()
}

func Timeout(args ...interface{}) *Error {
	return New(args...).WithKind(KindTimeout).AtWarning()
}

func NetworkFailure(args ...interface{}) *Error {
	return New(args...).WithKind(KindNetworkFailure).AtWarning()
}

func ResolveNothing(args ...interface{}) *Error {
	return New(args...).WithKind(KindResolveNothing).AtInfo()
}

func Internal(args ...interface{}) *Error {
	return New(args...).WithKind(KindInternal).AtError()
}
