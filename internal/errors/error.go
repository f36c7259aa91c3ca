package errors

import (
	stderrors "errors"
	"fmt"
)

// Category groups error codes by the subsystem that raised them.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryStore     Category = "store"
	CategoryEvents    Category = "events"
	CategoryTransport Category = "transport"
	CategoryCLI       Category = "cli"
)

// CodedError is an operator-facing error with a registered code.
type CodedError struct {
	// Code is the registry key, e.g. "E100".
	Code string

	Category Category

	// Message is the one-line summary from the registry.
	Message string

	// Detail describes this occurrence.
	Detail string

	// Suggestion is a hint on how to fix it.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Wrapped
}

// WithDetail sets the occurrence detail.
func (e *CodedError) WithDetail(d string) *CodedError {
	e.Detail = d
	return e
}

// WithDetailf sets the occurrence detail from a format string.
func (e *CodedError) WithDetailf(format string, args ...any) *CodedError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion sets the fix hint.
func (e *CodedError) WithSuggestion(s string) *CodedError {
	e.Suggestion = s
	return e
}

// Wrap records err as the cause.
func (e *CodedError) Wrap(err error) *CodedError {
	e.Wrapped = err
	return e
}

// New creates a CodedError from a registered code. Unknown codes produce an
// "Unknown error" message rather than failing.
func New(code string) *CodedError {
	template, ok := registry[code]
	if !ok {
		return &CodedError{Code: code, Message: "Unknown error"}
	}
	return &CodedError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Suggestion: template.Suggestion,
	}
}

// Newf creates an uncoded error in category.
func Newf(category Category, format string, args ...any) *CodedError {
	return &CodedError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError returns err unchanged if it already carries a code, and wraps it
// under code otherwise.
func FromError(err error, code string) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(code).Wrap(err)
}
