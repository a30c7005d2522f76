// Package errutil carries the engine's error taxonomy. Expected outcomes
// (key missing, already revoked) are plain result values at the call
// sites; these coded errors are reserved for failures the operator has
// to act on.
package errutil

import (
	"errors"
	"fmt"
)

type Code string

const (
	// CodeValidation: the caller supplied insufficient or invalid input.
	// Never retried automatically.
	CodeValidation Code = "validation"

	// CodeBackend: transport or store failure. The underlying cause is
	// preserved for display; the caller decides whether to re-trigger.
	CodeBackend Code = "backend"

	// CodeInvalidState: the key is not in the state the operation
	// requires, e.g. rotating a revoked key.
	CodeInvalidState Code = "invalid_state"

	// CodeOwnershipUnresolved: rotation could not determine the owning
	// user/project under the direct-store variant. The source key stays
	// revoked; the replacement was not created.
	CodeOwnershipUnresolved Code = "ownership_unresolved"

	CodeNotFound Code = "not_found"
	CodeInternal Code = "internal"
)

type BaseError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e BaseError) Unwrap() error {
	return e.Err
}

type Option func(*BaseError)

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code Code, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func Validation(msg string, opts ...Option) error {
	return New(CodeValidation, msg, opts...)
}

func Backend(msg string, opts ...Option) error {
	return New(CodeBackend, msg, opts...)
}

func InvalidState(msg string, opts ...Option) error {
	return New(CodeInvalidState, msg, opts...)
}

func OwnershipUnresolved(msg string, opts ...Option) error {
	return New(CodeOwnershipUnresolved, msg, opts...)
}

func NotFound(msg string, opts ...Option) error {
	return New(CodeNotFound, msg, opts...)
}

func Internal(msg string, opts ...Option) error {
	return New(CodeInternal, msg, opts...)
}

// CodeOf extracts the taxonomy code from err, or CodeInternal when err
// does not carry one.
func CodeOf(err error) Code {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeInternal
}

func HasCode(err error, code Code) bool {
	var be BaseError
	return errors.As(err, &be) && be.Code == code
}
