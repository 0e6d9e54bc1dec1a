// Package scanerr defines the error taxonomy shared across the client:
// Protocol, State, Argument, Transport, and Compatibility kinds. Each kind
// is a set of sentinel errors wrapped with fmt.Errorf so callers can use
// errors.Is against the sentinel while still getting a descriptive message.
package scanerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the five taxonomy buckets.
type Kind int

const (
	Protocol Kind = iota
	State
	Argument
	Transport
	Compatibility
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol"
	case State:
		return "state"
	case Argument:
		return "argument"
	case Transport:
		return "transport"
	case Compatibility:
		return "compatibility"
	default:
		return "unknown"
	}
}

// Protocol sentinels — counted and swallowed on the data path, surfaced on
// the control path.
var (
	ErrBadMagic             = errors.New("bad magic")
	ErrTruncated            = errors.New("truncated buffer")
	ErrUnexpectedMessageType = errors.New("unexpected control message type")
)

// State sentinels — raised synchronously at API boundaries.
var (
	ErrNotConnected          = errors.New("not connected")
	ErrAlreadyScanning       = errors.New("already scanning")
	ErrNotScanning           = errors.New("not scanning")
	ErrDirty                 = errors.New("configuration dirty: send configuration before scanning")
	ErrDuplicatePhaseElement = errors.New("duplicate phase element")
	ErrAlreadyRegistered     = errors.New("scan head already registered")
	ErrNotDiscovered         = errors.New("serial number not discovered")
	ErrUnknownScanHead       = errors.New("scan head id not registered")
	ErrEmptyPhaseTable       = errors.New("phase table is empty")
	ErrEmptyPhase            = errors.New("phase has no elements")
)

// Argument sentinels — synchronous, raised on bad caller input.
var (
	ErrOutOfRange     = errors.New("value out of range")
	ErrInvalidUnits   = errors.New("invalid units")
	ErrInvalidCamera  = errors.New("invalid camera port")
	ErrInvalidLaser   = errors.New("invalid laser port")
	ErrInvalidPolygon = errors.New("invalid polygon")
)

// Transport sentinels — surface through a Disconnected state change.
var (
	ErrPeerClosed  = errors.New("peer closed connection")
	ErrTimeout     = errors.New("operation timed out")
	ErrSocketError = errors.New("socket error")
	ErrDisconnected = errors.New("scan head disconnected")
)

// Compatibility sentinels.
var (
	ErrVersionIncompatible = errors.New("incompatible API version")
	ErrMissingCamera       = errors.New("scan head is missing a camera required by the phase table")
)

// Error wraps a sentinel with a Kind tag and contextual message.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Wrap builds a tagged Error from a sentinel, formatting additional context
// the way the teacher wraps ErrWriteFailed and I/O errors with fmt.Errorf.
func Wrap(kind Kind, sentinel error, format string, args ...interface{}) *Error {
	var err error
	if format == "" {
		err = sentinel
	} else {
		err = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
	}
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err (possibly wrapped) represents the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
