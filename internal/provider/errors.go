// Package provider defines the uniform backend contract (request
// lifecycle, cancellation semantics and failure reporting) and the
// closed set of backend implementations behind it.
package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed generation request. Cancellation is
// deliberately absent: a cancelled request is a normal outcome carried
// on Result, not an error.
type ErrorKind int

const (
	// KindConfigurationInvalid: a required setting or secret is
	// missing or unusable. Surfaced to the user as a setup prompt.
	KindConfigurationInvalid ErrorKind = iota + 1
	// KindTransportUnreachable: the network or local runtime did not
	// respond. The caller may retry; the core never retries itself.
	KindTransportUnreachable
	// KindUpstreamRejected: the backend answered with an error (bad
	// request, auth, quota). Surfaced with the backend's detail.
	KindUpstreamRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfigurationInvalid:
		return "configuration-invalid"
	case KindTransportUnreachable:
		return "transport-unreachable"
	case KindUpstreamRejected:
		return "upstream-rejected"
	default:
		return "unknown"
	}
}

// Error is the structured error value every backend reports through.
// Raw transport errors never cross the package boundary.
type Error struct {
	Kind     ErrorKind
	Provider string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from an error chain, or zero.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

func configErr(provider, detail string) *Error {
	return &Error{Kind: KindConfigurationInvalid, Provider: provider, Detail: detail}
}

func transportErr(provider string, err error) *Error {
	return &Error{Kind: KindTransportUnreachable, Provider: provider, Detail: err.Error(), Err: err}
}

func upstreamErr(provider, detail string, err error) *Error {
	return &Error{Kind: KindUpstreamRejected, Provider: provider, Detail: detail, Err: err}
}

// ErrRequestInFlight is returned when GetResponse is called while a
// previous request on the same instance has not settled. Overlapping
// requests are rejected, not queued.
var ErrRequestInFlight = errors.New("provider: request already in flight")

// ErrUnknownProvider is returned by the registry for IDs outside the
// closed provider set.
var ErrUnknownProvider = errors.New("provider: unknown provider")
