package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on it exhaustively.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindConflict
	KindNotFound
	KindTooManyAttempts
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTooManyAttempts:
		return "too_many_attempts"
	default:
		return "internal"
	}
}

// Error is the single error type returned by the identity core. Code is a
// stable machine-readable reason; Message is safe to show to a client.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string // per-field detail for validation failures
	Err     error             // underlying cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code, so the sentinels
// below can be matched with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrTokenExpired              = newError(KindForbidden, "token_expired", "token expired")
	ErrTokenInvalid              = newError(KindForbidden, "token_invalid", "token invalid")
	ErrMissingCredential         = newError(KindUnauthorized, "missing_credential", "authentication required")
	ErrInsufficientRole          = newError(KindForbidden, "insufficient_role", "insufficient role")
	ErrInvalidCredentials        = newError(KindUnauthorized, "invalid_credentials", "invalid email or password")
	ErrAccountDisabled           = newError(KindForbidden, "account_disabled", "account is disabled")
	ErrTooManyAttempts           = newError(KindTooManyAttempts, "too_many_attempts", "too many failed login attempts, try again later")
	ErrRateLimited               = newError(KindTooManyAttempts, "rate_limited", "too many requests, slow down")
	ErrBootstrapClosed           = newError(KindForbidden, "bootstrap_closed", "registration is closed")
	ErrSuperadminCreateForbidden = newError(KindForbidden, "superadmin_create_forbidden", "SUPERADMIN accounts cannot be created")
	ErrSelfDemotionForbidden     = newError(KindForbidden, "self_demotion_forbidden", "you cannot change your own SUPERADMIN role")
	ErrSelfDeleteForbidden       = newError(KindForbidden, "self_delete_forbidden", "you cannot delete your own account")
	ErrLastSuperadminProtected   = newError(KindForbidden, "last_superadmin_protected", "the last active SUPERADMIN cannot be demoted, deactivated or deleted")
	ErrEmailTaken                = newError(KindConflict, "email_taken", "email already registered")
	ErrAdminNotFound             = newError(KindNotFound, "admin_not_found", "admin not found")
	ErrPasswordMismatch          = newError(KindForbidden, "password_mismatch", "current password is incorrect")
)

// KindOf classifies err. Anything that is not an *Error is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// validationError builds a Validation error carrying per-field messages.
func validationError(fields map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "validation_failed",
		Message: "validation failed",
		Fields:  fields,
	}
}

// internalError wraps an unexpected failure. The message is generic; the
// cause stays available through Unwrap for logging.
func internalError(op string, err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    "internal",
		Message: op + " failed",
		Err:     err,
	}
}
