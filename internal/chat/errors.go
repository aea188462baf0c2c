package chat

import (
	"errors"
	"fmt"
)

// Code identifies the error class carried back to the originating
// connection on a message-error event.
type Code string

const (
	CodeUnauthorized Code = "authorization_error"
	CodeValidation   Code = "validation_error"
	CodeNotFound     Code = "not_found"
	CodeDelivery     Code = "delivery_error"
	CodeInternal     Code = "internal_error"
)

// Error is a domain failure reported once to the sender and otherwise
// swallowed. The client decides whether to resend; this layer never retries.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Unauthorizedf reports an authenticated caller acting outside their
// chats. The connection stays alive.
func Unauthorizedf(format string, args ...any) *Error {
	return &Error{Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Validationf reports a malformed payload.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf reports a referenced chat, group, message or user being absent.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Deliveryf reports a persistence failure during message send, wrapping the
// underlying cause.
func Deliveryf(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeDelivery, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Internalf wraps an unexpected collaborator failure.
func Internalf(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the error class, defaulting to internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message. Internal causes are never
// leaked onto the wire.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal error"
}
