// Package apperrors defines the error kinds surfaced by the ledger core.
//
// Every kind has a stable string code the presentation layer can branch on.
// Errors are compared by kind: errors.Is(err, apperrors.ErrNotFound) matches
// any *Error of kind NotFound regardless of message.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, enumerable error code.
type Kind string

const (
	KindDuplicateMembership      Kind = "duplicate_membership"
	KindLastAdminViolation       Kind = "last_admin_violation"
	KindAlreadyMember            Kind = "already_member"
	KindDuplicatePending         Kind = "duplicate_pending"
	KindNotAuthorized            Kind = "not_authorized"
	KindNotFound                 Kind = "not_found"
	KindNotPending               Kind = "not_pending"
	KindInvalidSplit             Kind = "invalid_split"
	KindPayerNotMember           Kind = "payer_not_member"
	KindShareUserNotMember       Kind = "share_user_not_member"
	KindTimeout                  Kind = "timeout"
	KindInternalConsistencyFault Kind = "internal_consistency_fault"
	KindInvalidArgument          Kind = "invalid_argument"
	KindConflict                 Kind = "conflict"
	KindInternal                 Kind = "internal"
	KindRateLimited              Kind = "rate_limited"
)

// Error is a ledger error of a given Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrDuplicateMembership      = &Error{Kind: KindDuplicateMembership}
	ErrLastAdminViolation       = &Error{Kind: KindLastAdminViolation}
	ErrAlreadyMember            = &Error{Kind: KindAlreadyMember}
	ErrDuplicatePending         = &Error{Kind: KindDuplicatePending}
	ErrNotAuthorized            = &Error{Kind: KindNotAuthorized}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrNotPending               = &Error{Kind: KindNotPending}
	ErrInvalidSplit             = &Error{Kind: KindInvalidSplit}
	ErrPayerNotMember           = &Error{Kind: KindPayerNotMember}
	ErrShareUserNotMember       = &Error{Kind: KindShareUserNotMember}
	ErrTimeout                  = &Error{Kind: KindTimeout}
	ErrInternalConsistencyFault = &Error{Kind: KindInternalConsistencyFault}
	ErrInvalidArgument          = &Error{Kind: KindInvalidArgument}
	ErrConflict                 = &Error{Kind: KindConflict}
	ErrInternal                 = &Error{Kind: KindInternal}
)

// New returns an *Error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to the status code the transport should return.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindDuplicateMembership, KindAlreadyMember, KindDuplicatePending,
		KindNotPending, KindLastAdminViolation, KindConflict:
		return http.StatusConflict
	case KindInvalidSplit, KindPayerNotMember, KindShareUserNotMember:
		return http.StatusUnprocessableEntity
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
