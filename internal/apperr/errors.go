// Package apperr defines the error kinds surfaced by the identity core.
//
// Errors carry a machine-readable Code; callers translate codes into
// end-user messages. Match kinds with errors.Is against the sentinels below.
package apperr

import "errors"

// Code is a machine-readable error kind.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeEmptyCredential   Code = "EMPTY_CREDENTIAL"
	CodePolicyViolation   Code = "POLICY_VIOLATION"
	CodeDuplicateEmail    Code = "DUPLICATE_EMAIL"
	CodeInvalidEmail      Code = "INVALID_EMAIL"
	CodeUsernameCollision Code = "USERNAME_COLLISION"
	CodeInvalidUsername   Code = "INVALID_USERNAME"
	CodeAccountNotFound   Code = "ACCOUNT_NOT_FOUND"
	CodeTerminatedAccount Code = "TERMINATED_ACCOUNT"
	CodeInvalidSettings   Code = "INVALID_SETTINGS"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // machine-readable kind
	Message  string            // internal message for logs
	Metadata map[string]string // structured detail for presentation layers
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error carrying structured detail.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

var (
	ErrEmptyCredential   = New(CodeEmptyCredential, "password is empty")
	ErrPolicyViolation   = New(CodePolicyViolation, "password does not meet policy")
	ErrDuplicateEmail    = New(CodeDuplicateEmail, "email already exists")
	ErrInvalidEmail      = New(CodeInvalidEmail, "invalid email")
	ErrUsernameCollision = New(CodeUsernameCollision, "duplicate username")
	ErrInvalidUsername   = New(CodeInvalidUsername, "username is empty")
	ErrAccountNotFound   = New(CodeAccountNotFound, "account not found")
	ErrTerminatedAccount = New(CodeTerminatedAccount, "account is terminated")
	ErrInvalidSettings   = New(CodeInvalidSettings, "invalid password settings")
)
