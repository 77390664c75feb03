// Package rtcerr defines the error taxonomy from the core's error-handling
// design: every error raised by rtcore carries a Kind so that callers can
// decide, mechanically, whether to retry, drop-and-continue, or tear down
// the connection, instead of pattern-matching on error strings.
package rtcerr

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error by how the orchestrator must react to it.
type Kind int

const (
	// KindConfig: invalid addresses or out-of-range parameters. Fail startup.
	KindConfig Kind = iota
	// KindNetworkTransient: would-block or a single recv timeout. Retried silently.
	KindNetworkTransient
	// KindNetworkFatal: socket closed or bind failure. Propagate, close connection.
	KindNetworkFatal
	// KindCryptographic: HMAC failure, replay, fingerprint mismatch, AES error.
	// Packet dropped; fingerprint mismatch additionally closes the connection.
	KindCryptographic
	// KindCodec: decoder could not assemble a frame, or SPS/PPS not yet seen.
	// Drop packet/frame, continue.
	KindCodec
	// KindProtocolParse: malformed STUN/RTP/SCTP. Drop packet, count, continue.
	KindProtocolParse
	// KindApplication: file checksum mismatch, offer rejected. Surface as an
	// event; transport is left untouched.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNetworkTransient:
		return "network_transient"
	case KindNetworkFatal:
		return "network_fatal"
	case KindCryptographic:
		return "cryptographic"
	case KindCodec:
		return "codec"
	case KindProtocolParse:
		return "protocol_parse"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is an rtcore error tagged with a Kind, optionally wrapping a cause.
// It carries a github.com/pkg/errors stack trace captured at the point of
// creation, the way the teacher's own errors.Errorf call in
// internal/media/registry.go does, so a logged Kind error can still be
// traced back to its call site.
type Error struct {
	kind  Kind
	msg   string
	cause error
	stack error
}

// New creates a Kind error from a format string and args, the same calling
// convention as pkg/errors.Errorf.
func New(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{kind: kind, msg: msg, stack: pkgerrors.New(msg)}
}

// Wrap creates a Kind error from msg and cause, preserving cause for
// Unwrap and capturing a fresh stack trace at the wrap point.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause, stack: pkgerrors.Wrap(cause, msg)}
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// StackTrace returns the stack frames captured when this error was raised,
// for diagnostic logging; it is nil if the underlying pkg/errors value
// doesn't expose one.
func (e *Error) StackTrace() pkgerrors.StackTrace {
	type tracer interface{ StackTrace() pkgerrors.StackTrace }
	if t, ok := e.stack.(tracer); ok {
		return t.StackTrace()
	}
	return nil
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	rerr, ok := err.(*Error)
	return ok && rerr.kind == kind
}
