// Package apierr defines the typed error taxonomy the authorization
// pipeline raises instead of ad-hoc sentinel errors. Each Kind carries a
// fixed gRPC status code so a future transport adapter can map it to a
// wire status without the domain layer knowing about transport at all.
package apierr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
)

// Kind classifies the error's cause.
type Kind string

const (
	KindValidation       Kind = "VALIDATION"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidState     Kind = "INVALID_STATE"
	KindBusinessDecline  Kind = "BUSINESS_DECLINE"
	KindTransientUpstream Kind = "TRANSIENT_UPSTREAM"
	KindInternal         Kind = "INTERNAL"
)

var kindCodes = map[Kind]codes.Code{
	KindValidation:        codes.InvalidArgument,
	KindNotFound:          codes.NotFound,
	KindInvalidState:      codes.FailedPrecondition,
	KindBusinessDecline:   codes.FailedPrecondition,
	KindTransientUpstream: codes.Unavailable,
	KindInternal:          codes.Internal,
}

// Error is the typed error value carried through the orchestration
// pipeline. It is never meant to cross a wire boundary directly; a
// transport adapter would translate it using Code() and ReasonCode.
type Error struct {
	Kind       Kind
	ReasonCode domain.ReasonCode
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code maps the error's Kind to a gRPC status code.
func (e *Error) Code() codes.Code {
	if c, ok := kindCodes[e.Kind]; ok {
		return c
	}
	return codes.Unknown
}

// Status returns a *status.Status suitable for a future gRPC transport.
func (e *Error) Status() *status.Status {
	return status.New(e.Code(), e.Message)
}

// New constructs a typed Error with no wrapped cause.
func New(kind Kind, reason domain.ReasonCode, message string) *Error {
	return &Error{Kind: kind, ReasonCode: reason, Message: message}
}

// Wrap constructs a typed Error wrapping an underlying cause (e.g. a
// database or network error surfaced from a repository/external client).
func Wrap(kind Kind, reason domain.ReasonCode, message string, cause error) *Error {
	return &Error{Kind: kind, ReasonCode: reason, Message: message, cause: cause}
}

// As is a thin wrapper over errors.As for extracting an *Error from a
// wrapped error chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsKind reports whether err is an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
