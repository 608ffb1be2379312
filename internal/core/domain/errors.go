package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
	ErrTaskFailed   = errors.New("task failed")
)

// ErrorCode is the stable, machine-readable failure class.
type ErrorCode string

const (
	CodeNetwork         ErrorCode = "NETWORK_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeConnection      ErrorCode = "CONNECTION_ERROR"
	CodeValidation      ErrorCode = "VALIDATION_ERROR"
	CodeAuthentication  ErrorCode = "AUTHENTICATION_ERROR"
	CodeAuthorization   ErrorCode = "AUTHORIZATION_ERROR"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeFileTooLarge    ErrorCode = "FILE_TOO_LARGE"
	CodeInvalidFileType ErrorCode = "INVALID_FILE_TYPE"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeServer          ErrorCode = "SERVER_ERROR"
	CodeProcessing      ErrorCode = "PROCESSING_ERROR"
	CodeParse           ErrorCode = "PARSE_ERROR"
	CodeCircuitOpen     ErrorCode = "CIRCUIT_OPEN"
	CodeCanceled        ErrorCode = "CANCELED"
	CodeUnknown         ErrorCode = "UNKNOWN_ERROR"
)

// Failure is the single error shape surfaced to callers of the client.
// HTTPStatus is 0 when no response was received. Values are not mutated
// after construction; the With* helpers return copies.
type Failure struct {
	Message    string
	HTTPStatus int
	Code       ErrorCode
	Retryable  bool
	Details    json.RawMessage

	cause error
}

func NewFailure(code ErrorCode, status int, message string, retryable bool) *Failure {
	return &Failure{
		Message:    message,
		HTTPStatus: status,
		Code:       code,
		Retryable:  retryable,
	}
}

func (f *Failure) Error() string {
	if f.HTTPStatus > 0 {
		return fmt.Sprintf("%s (%d): %s", f.Code, f.HTTPStatus, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes the semantic kind and the underlying cause to errors.Is/As.
func (f *Failure) Unwrap() []error {
	out := make([]error, 0, 2)
	if kind := f.kind(); kind != nil {
		out = append(out, kind)
	}
	if f.cause != nil {
		out = append(out, f.cause)
	}
	return out
}

func (f *Failure) kind() error {
	switch f.Code {
	case CodeValidation, CodeFileTooLarge, CodeInvalidFileType:
		return ErrInvalidInput
	case CodeAuthentication:
		return ErrUnauthorized
	case CodeAuthorization:
		return ErrForbidden
	case CodeNotFound:
		return ErrNotFound
	case CodeProcessing:
		return ErrTaskFailed
	}
	if f.Retryable {
		return ErrTemporary
	}
	return nil
}

func (f *Failure) WithCause(err error) *Failure {
	out := *f
	out.cause = err
	return &out
}

func (f *Failure) WithMessage(message string) *Failure {
	out := *f
	out.Message = message
	return &out
}

func (f *Failure) WithDetails(details json.RawMessage) *Failure {
	out := *f
	out.Details = append(json.RawMessage(nil), details...)
	return &out
}

// AsFailure normalizes any error into a Failure. Nil stays nil.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	switch {
	case errors.Is(err, context.Canceled):
		return NewFailure(CodeCanceled, 0, "operation canceled", false).WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewFailure(CodeTimeout, 408, "request timeout", true).WithCause(err)
	case errors.Is(err, ErrInvalidInput):
		return NewFailure(CodeValidation, 0, err.Error(), false).WithCause(err)
	case errors.Is(err, ErrNotFound):
		return NewFailure(CodeNotFound, 0, err.Error(), false).WithCause(err)
	}
	return NewFailure(CodeUnknown, 0, err.Error(), false).WithCause(err)
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
