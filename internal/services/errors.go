package services

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicateIdentity is returned when the email is already registered.
	ErrDuplicateIdentity = errors.New("user already exists")

	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when a request carries no usable identity.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal wraps store, hasher and signer failures.
	ErrInternal = errors.New("internal failure")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Msg      string `json:"msg"`
	Param    string `json:"param,omitempty"`
	Location string `json:"location,omitempty"`
}

// ValidationError carries every violation found in a request, not just the
// first one.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Msg)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// internal wraps cause onto ErrInternal so callers can match the kind while
// logs keep the cause.
func internal(op string, cause error) error {
	return &internalError{op: op, cause: cause}
}

type internalError struct {
	op    string
	cause error
}

func (e *internalError) Error() string {
	return e.op + ": " + e.cause.Error()
}

func (e *internalError) Unwrap() []error {
	return []error{ErrInternal, e.cause}
}
