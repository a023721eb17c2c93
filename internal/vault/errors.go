// Package vault defines the payout vault protocol surface: the typed
// error taxonomy every operation reports through, and the Client
// interface the ledger and the RPC gateway client both satisfy.
package vault

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a vault operation failure. Each kind implies a
// different corrective action, so callers must be able to tell them
// apart; operations never collapse failures into false/0/nil.
type ErrorKind int

const (
	// KindConfiguration: missing provider or no account connected.
	// Not retryable until the user acts.
	KindConfiguration ErrorKind = iota

	// KindValidation: non-positive amount, malformed receiver, bad
	// threshold. Caller bug; never retry with the same input.
	KindValidation

	// KindAuthorization: caller is not an owner, or already confirmed.
	KindAuthorization

	// KindInsufficientState: quorum not reached, balance too low, or
	// checkpoint ceiling breached. Retryable only after real state
	// changes.
	KindInsufficientState

	// KindAlreadyExecuted: double-execution attempt. The caller's view
	// of the transaction was stale.
	KindAlreadyExecuted

	// KindTransport: signature rejected or network failure. Retryable
	// by issuing a fresh operation, never by replaying the old one.
	KindTransport
)

// String returns the taxonomy name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindValidation:
		return "ValidationError"
	case KindAuthorization:
		return "AuthorizationError"
	case KindInsufficientState:
		return "InsufficientState"
	case KindAlreadyExecuted:
		return "AlreadyExecuted"
	case KindTransport:
		return "TransportError"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Retryable reports whether reissuing the same logical operation can
// ever succeed without new state. Only transport failures qualify.
func (k ErrorKind) Retryable() bool {
	return k == KindTransport
}

// Error is a vault operation failure with its taxonomy kind.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "ledger.Execute"
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a taxonomy error.
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a taxonomy error around an underlying cause.
func Wrap(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the taxonomy kind from err. The second return is
// false when err is not a vault error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a vault error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
