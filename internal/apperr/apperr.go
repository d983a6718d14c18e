// Package apperr defines the domain error vocabulary shared by every
// component. Handlers never hand-write HTTP status codes; they return an
// *Error (or a wrapped one) and a single mapping function turns it into a
// response.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of domain failure. These are the only kinds in
// use; nothing else should cross a component boundary as an error kind.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindForbiddenCSRF   Kind = "forbidden_csrf"
	KindAuthFailed      Kind = "authentication_failed"
	KindOtpRequired     Kind = "otp_required"
	KindOtpLocked       Kind = "otp_locked"
	KindInvalidGrant    Kind = "invalid_grant"
	KindTooManyRequests Kind = "too_many_requests"
	KindInternal        Kind = "internal"
)

// Error is the single error type every component returns across its
// public boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(msg string, cause error) *Error   { return New(KindValidation, msg, cause) }
func NotFound(msg string, cause error) *Error     { return New(KindNotFound, msg, cause) }
func Conflict(msg string, cause error) *Error     { return New(KindConflict, msg, cause) }
func Unauthorized(msg string, cause error) *Error { return New(KindUnauthorized, msg, cause) }
func Forbidden(msg string, cause error) *Error    { return New(KindForbidden, msg, cause) }
func ForbiddenCSRF(msg string) *Error             { return New(KindForbiddenCSRF, msg, nil) }
func AuthFailed(cause error) *Error {
	// The message never varies: callers must not be able to distinguish
	// "unknown subject" from "wrong password" from this error alone.
	return New(KindAuthFailed, "incorrect email or password", cause)
}
func OtpRequired() *Error                   { return New(KindOtpRequired, "otp verification required", nil) }
func OtpLocked(cause error) *Error          { return New(KindOtpLocked, "too many failed otp attempts", cause) }
func InvalidGrant(msg string, cause error) *Error { return New(KindInvalidGrant, msg, cause) }
func TooManyRequests(msg string) *Error     { return New(KindTooManyRequests, msg, nil) }
func Internal(cause error) *Error           { return New(KindInternal, "internal error", cause) }

// Code maps an error's Kind to an HTTP status code. Non-*Error values are
// treated as KindInternal.
func Code(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindForbiddenCSRF:
		return http.StatusForbidden
	case KindAuthFailed:
		return http.StatusBadRequest
	case KindOtpRequired:
		return http.StatusUnauthorized
	case KindOtpLocked:
		return http.StatusTooManyRequests
	case KindInvalidGrant:
		return http.StatusBadRequest
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// NewPasswordEqualsCurrent is a specific Conflict used by the
// change-password flow.
func NewPasswordEqualsCurrent() *Error {
	return New(KindConflict, "new password equals current password", nil)
}
