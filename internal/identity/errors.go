package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how the caller should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindAuth       Kind = "auth"
	KindDependency Kind = "dependency"
)

// HTTPStatus maps the kind onto the response status exposed by the API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindConflict, KindAuth:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error type returned by Service. Code is stable and machine readable;
// Message is safe to show to clients. Err carries the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that wrapped copies compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrContactRequired      = newError(KindValidation, "contact_required", "email or phone number is required")
	ErrInvalidEmail         = newError(KindValidation, "invalid_email", "please provide a valid email")
	ErrInvalidRole          = newError(KindValidation, "invalid_role", "userType must be rider or driver")
	ErrDisplayNameRequired  = newError(KindValidation, "display_name_required", "fullName is required")
	ErrInvalidDriverProfile = newError(KindValidation, "invalid_driver_profile", "driver license, vehicle type (sedan, suv, luxury, van) and vehicle year are required")
	ErrWeakSecret           = newError(KindValidation, "weak_secret", "password must be at least 6 characters")
	ErrFederatedKeyRequired = newError(KindValidation, "federated_key_required", "social ID and provider are required")
	ErrInvalidProvider      = newError(KindValidation, "invalid_provider", "provider must be google or facebook")
	ErrCodeRequired         = newError(KindValidation, "otp_required", "otp is required")
	ErrIdentityRequired     = newError(KindValidation, "identity_required", "identityId is required")

	ErrNotFound = newError(KindNotFound, "identity_not_found", "user not found")

	ErrAlreadyVerified          = newError(KindConflict, "already_verified", "user already exists and is verified")
	ErrContactAlreadyRegistered = newError(KindConflict, "contact_already_registered", "contact already exists with a different login method")
	ErrRoleMismatch             = newError(KindConflict, "role_mismatch", "user is not a driver")

	ErrChallengeMissing  = newError(KindAuth, "challenge_missing", "OTP not found or already used")
	ErrChallengeExpired  = newError(KindAuth, "challenge_expired", "OTP has expired")
	ErrChallengeMismatch = newError(KindAuth, "challenge_mismatch", "invalid OTP")
	ErrTooManyAttempts   = newError(KindAuth, "too_many_attempts", "too many invalid OTP attempts, request a new code")
	ErrNotVerified       = newError(KindAuth, "not_verified", "please verify your account first")
	ErrInvalidCredential = newError(KindAuth, "invalid_credential", "invalid password")

	ErrDeliveryFailed   = newError(KindDependency, "delivery_failed", "failed to send OTP")
	ErrStoreUnavailable = newError(KindDependency, "store_unavailable", "internal server error")
	ErrCredentialIssue  = newError(KindDependency, "credential_issue_failed", "internal server error")
)

// wrap attaches a cause to a sentinel while keeping errors.Is(err, sentinel) true.
func wrap(sentinel *Error, op string, cause error) error {
	e := *sentinel
	e.Err = fmt.Errorf("%s: %w", op, cause)
	return &e
}

// AsError extracts the *Error from err, converting anything unknown into a
// store failure so that no raw error reaches the caller.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return wrap(ErrStoreUnavailable, "unclassified", err).(*Error)
}
