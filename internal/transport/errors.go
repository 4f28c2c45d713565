package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind classifies a transport failure.
type Kind int

const (
	// KindNotConnected means an operation was attempted with no live connection.
	KindNotConnected Kind = iota

	// KindInvalidChannelType means the server offered an unexpected sub-channel kind.
	KindInvalidChannelType

	// KindAuthenticationFailed means the credentials were rejected.
	KindAuthenticationFailed

	// KindConnectionFailed means the connection could not be established
	// (host unreachable, DNS failure, connection refused).
	KindConnectionFailed

	// KindTimeout means a bounded operation did not complete in time.
	KindTimeout

	// KindChannelError means a sub-channel failed in a way distinct from a timeout.
	KindChannelError

	// KindNoSession means an execution was attempted before any channel
	// existed for the target key.
	KindNoSession
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not connected"
	case KindInvalidChannelType:
		return "invalid channel type"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindConnectionFailed:
		return "connection failed"
	case KindTimeout:
		return "timeout"
	case KindChannelError:
		return "channel error"
	case KindNoSession:
		return "no session"
	default:
		return "unknown"
	}
}

// Human-readable reasons carried by KindConnectionFailed errors. The
// presentation layer renders these directly; raw transport error text
// never reaches it.
const (
	ReasonHostNotFound    = "host not found on network"
	ReasonServiceDisabled = "remote shell service not enabled on target"
	ReasonHostUnreachable = "host unreachable"
)

// Error is a classified transport failure.
type Error struct {
	// Kind is the failure classification.
	Kind Kind

	// Reason is a human-readable classification suitable for display.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error with a display reason.
func NewError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// WrapError classifies an underlying error.
func WrapError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf extracts the classification from err. The second return is false
// when err carries no transport classification.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsLossIndicator reports whether err should be treated as evidence that the
// whole connection is gone. Timeouts and channel errors always count;
// authentication and connection failures only count when observed on an
// already-established session, which is the only place this is consulted.
func IsLossIndicator(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindTimeout, KindChannelError, KindAuthenticationFailed, KindConnectionFailed:
		return true
	default:
		return false
	}
}

// classifyDialError maps a TCP-phase failure to a typed error with a
// display reason.
func classifyDialError(host string, err error) *Error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return WrapError(KindConnectionFailed, ReasonHostNotFound, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		// Port 22 refusing connections almost always means Remote Login
		// is switched off on the target.
		return WrapError(KindConnectionFailed, ReasonServiceDisabled, err)
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return WrapError(KindConnectionFailed, ReasonHostUnreachable, err)
	}
	if isTimeout(err) {
		return WrapError(KindTimeout, fmt.Sprintf("no response from %s", host), err)
	}
	return WrapError(KindConnectionFailed, ReasonHostUnreachable, err)
}

// classifyHandshakeError maps an SSH-negotiation failure to a typed error.
func classifyHandshakeError(err error) *Error {
	// x/crypto/ssh reports rejected credentials as "ssh: unable to
	// authenticate"; there is no typed error to match on.
	if strings.Contains(err.Error(), "unable to authenticate") {
		return WrapError(KindAuthenticationFailed, "credentials rejected", err)
	}
	if isTimeout(err) {
		return WrapError(KindTimeout, "handshake timed out", err)
	}
	return WrapError(KindConnectionFailed, ReasonHostUnreachable, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
