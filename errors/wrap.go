package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the chain.
// If err is nil, Wrap returns nil. An *Error keeps its code, category and
// attribution; context errors become TIMEOUT or CANCELED; anything else
// becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		wrapped := &Error{
			code:      typed.code,
			category:  typed.category,
			message:   message,
			cause:     err,
			metadata:  typed.Metadata(),
			timestamp: typed.timestamp,
			rank:      typed.rank,
			runID:     typed.runID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// As extracts an *Error from an error chain, or nil.
func As(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is checks if the outermost *Error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	if typed := As(err); typed != nil {
		return typed.code == code
	}
	return false
}

// IsCategory checks if the outermost *Error in the chain has the category.
func IsCategory(err error, category ErrorCategory) bool {
	if typed := As(err); typed != nil {
		return typed.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	if typed := As(err); typed != nil {
		return typed.Retryable()
	}
	return false
}

// Code extracts the error code, or "" for foreign errors.
func Code(err error) ErrorCode {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return ""
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// Join combines multiple errors into a single error.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
