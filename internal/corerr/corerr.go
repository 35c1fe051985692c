// Package corerr defines the classified error vocabulary shared by every
// stage of the token pipeline, from the provider adaptor through the
// orchestrator.
package corerr

import "errors"

// Kind is the classification an upper layer reasons about; it never
// depends on a vendor-specific error type.
type Kind string

const (
	KindRateLimit           Kind = "rate_limit"
	KindTimeout             Kind = "timeout"
	KindProviderDown        Kind = "provider_down"
	KindFatal               Kind = "fatal"
	KindGenerationExhausted Kind = "exhausted"
	KindPersistenceDeferred Kind = "persistence_deferred"
	KindPersistenceFatal    Kind = "persistence_fatal"
	KindCancelled           Kind = "cancelled"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// classification without caring about the transport that produced it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func RateLimit(err error) *Error           { return New(KindRateLimit, err) }
func Timeout(err error) *Error             { return New(KindTimeout, err) }
func ProviderDown(err error) *Error        { return New(KindProviderDown, err) }
func Fatal(err error) *Error               { return New(KindFatal, err) }
func Exhausted(err error) *Error           { return New(KindGenerationExhausted, err) }
func Cancelled(err error) *Error           { return New(KindCancelled, err) }
func PersistenceDeferred(err error) *Error { return New(KindPersistenceDeferred, err) }
func PersistenceFatal(err error) *Error    { return New(KindPersistenceFatal, err) }

// Qualifying reports whether the classification counts toward a circuit
// breaker's consecutive failure threshold.
func (k Kind) Qualifying() bool {
	switch k {
	case KindTimeout, KindRateLimit, KindProviderDown:
		return true
	default:
		return false
	}
}

// Is reports whether err, or any error it wraps, is an *Error of the
// given kind. It finds the *Error with errors.As and compares its Kind,
// so callers need not type-assert *Error themselves.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
