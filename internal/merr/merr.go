// Package merr defines the error taxonomy shared by the transport,
// codec, subscription and health-state layers. Failures are classified
// at the point they occur and fully absorbed by the per-source state
// machine; nothing above it handles raw errors.
package merr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for health-state accounting.
type Kind string

const (
	// KindNetwork covers transport-level failures: timeout, connection
	// refused, malformed response framing. Always recoverable.
	KindNetwork Kind = "network"

	// KindProtocol covers malformed or unexpected payload shapes from an
	// otherwise-reachable source.
	KindProtocol Kind = "protocol"

	// KindAuth covers expired or invalid credentials, recoverable via a
	// credential refresh.
	KindAuth Kind = "auth"

	// KindSubscription covers event-lease failures: missing subscription
	// id, or a precondition-failed renewal.
	KindSubscription Kind = "subscription"
)

// Error wraps a failure with its kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Network wraps err as a transport-level failure.
func Network(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Protocol wraps err as a malformed-payload failure.
func Protocol(op string, err error) error {
	return &Error{Kind: KindProtocol, Op: op, Err: err}
}

// Auth wraps err as a credential failure.
func Auth(op string, err error) error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// Subscription wraps err as an event-lease failure.
func Subscription(op string, err error) error {
	return &Error{Kind: KindSubscription, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindNetwork if err carries no
// classification. Unclassified failures count as transport failures so
// the health state machine always has something to escalate on.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindNetwork
}

// IsAuth reports whether err is auth-classified.
func IsAuth(err error) bool {
	return is(err, KindAuth)
}

// IsNetwork reports whether err is transport-classified.
func IsNetwork(err error) bool {
	return is(err, KindNetwork)
}

// IsProtocol reports whether err is payload-classified.
func IsProtocol(err error) bool {
	return is(err, KindProtocol)
}

// IsSubscription reports whether err is lease-classified.
func IsSubscription(err error) bool {
	return is(err, KindSubscription)
}

func is(err error, kind Kind) bool {
	var me *Error
	return errors.As(err, &me) && me.Kind == kind
}
