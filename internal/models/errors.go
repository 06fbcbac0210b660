package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure so transports can map it to a response
type ErrorKind string

const (
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindInvalidState         ErrorKind = "INVALID_STATE"
	KindInsufficientCapacity ErrorKind = "INSUFFICIENT_CAPACITY"
	KindInvalidPickupDrop    ErrorKind = "INVALID_PICKUP_DROP"
	KindTripNotBookable      ErrorKind = "TRIP_NOT_BOOKABLE"
	KindSignatureInvalid     ErrorKind = "SIGNATURE_INVALID"
	KindInvalidPayload       ErrorKind = "INVALID_PAYLOAD"
	KindProviderError        ErrorKind = "PROVIDER_ERROR"
	KindReferenceMismatch    ErrorKind = "REFERENCE_MISMATCH"
	KindForbidden            ErrorKind = "FORBIDDEN"
)

// DomainError is an expected business failure. Anything that is not a
// DomainError is treated as an internal error by the transport layer.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error // optional cause, never shown to clients
}

// Sentinels for errors.Is matching on kind
var (
	ErrNotFound             = &DomainError{Kind: KindNotFound}
	ErrInvalidState         = &DomainError{Kind: KindInvalidState}
	ErrInsufficientCapacity = &DomainError{Kind: KindInsufficientCapacity}
	ErrInvalidPickupDrop    = &DomainError{Kind: KindInvalidPickupDrop}
	ErrTripNotBookable      = &DomainError{Kind: KindTripNotBookable}
	ErrSignatureInvalid     = &DomainError{Kind: KindSignatureInvalid}
	ErrInvalidPayload       = &DomainError{Kind: KindInvalidPayload}
	ErrProviderError        = &DomainError{Kind: KindProviderError}
	ErrReferenceMismatch    = &DomainError{Kind: KindReferenceMismatch}
	ErrForbidden            = &DomainError{Kind: KindForbidden}
)

// NewDomainError builds a DomainError with a formatted message
func NewDomainError(kind ErrorKind, format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapDomainError builds a DomainError that keeps the underlying cause
func WrapDomainError(kind ErrorKind, err error, format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same kind, so
// errors.Is(err, models.ErrNotFound) works for every not-found error.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may retry the same request later
func (e *DomainError) Retryable() bool {
	return e.Kind == KindProviderError
}

// AsDomainError extracts a DomainError from an error chain
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
