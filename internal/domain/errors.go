package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every non-success outcome of a logical call.
type ErrorKind string

const (
	// KindTransport covers network failures, timeouts and expired deadlines.
	KindTransport ErrorKind = "transport"
	// KindAuth is a 401/403 or a missing credential.
	KindAuth ErrorKind = "auth"
	// KindRateLimited is an HTTP 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindServerError is any 5xx.
	KindServerError ErrorKind = "server_error"
	// KindMalformed is a response body that does not match the provider schema.
	KindMalformed ErrorKind = "malformed"
	// KindProviderRejected is a vendor-reported semantic error, e.g. an unknown model.
	KindProviderRejected ErrorKind = "provider_rejected"
)

// Retryable reports whether the transport may issue another attempt after a
// failure of this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransport, KindServerError, KindMalformed:
		return true
	case KindAuth, KindRateLimited, KindProviderRejected:
		return false
	default:
		return false
	}
}

// Error is the single failure shape crossing package boundaries.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Provider   ProviderName
	Attempts   int
	Err        error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     cause,
	}
}

// NewStatusError creates a classified error carrying the raw HTTP status.
func NewStatusError(kind ErrorKind, status int, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		StatusCode: status,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = string(e.Provider) + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err. The second result is false when err
// is not a classified error.
func KindOf(err error) (ErrorKind, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether err is a classified error of a retryable kind.
func IsRetryable(err error) bool {
	k, ok := KindOf(err)
	return ok && k.Retryable()
}

// Refine merges an adapter's reading of a vendor error body into the
// transport's status-based classification. Auth and rate limiting are never
// overridden; only server or rejected failures may become ProviderRejected.
func Refine(base, refined *Error) *Error {
	if refined == nil || refined == base {
		return base
	}

	out := *base
	if refined.Message != "" {
		out.Message = refined.Message
	}

	switch base.Kind {
	case KindServerError, KindProviderRejected:
		if refined.Kind == KindProviderRejected {
			out.Kind = KindProviderRejected
		}
	default:
	}

	return &out
}
