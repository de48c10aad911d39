package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Error is the structured error type returned by rectopt packages.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	timestamp time.Time
	rank      int    // -1 when not tied to a rank
	runID     string // empty when not tied to a run
}

var (
	_ error            = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable reports whether a fresh run may succeed.
func (e *Error) Retryable() bool {
	return e.category.IsRetryable()
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// Rank returns the worker rank the error was raised on, or -1.
func (e *Error) Rank() int {
	return e.rank
}

// RunID returns the run the error belongs to, if set.
func (e *Error) RunID() string {
	return e.runID
}

type errorJSON struct {
	Code      ErrorCode         `json:"code"`
	Category  ErrorCategory     `json:"category"`
	Message   string            `json:"message"`
	Cause     string            `json:"cause,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Rank      *int              `json:"rank,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:     e.code,
		Category: e.category,
		Message:  e.message,
		Metadata: e.metadata,
		RunID:    e.runID,
	}
	if e.rank >= 0 {
		rank := e.rank
		j.Rank = &rank
	}
	if e.cause != nil {
		j.Cause = e.cause.Error()
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.code = j.Code
	e.category = j.Category
	e.message = j.Message
	e.metadata = j.Metadata
	e.runID = j.RunID
	e.rank = -1
	if j.Rank != nil {
		e.rank = *j.Rank
	}
	if j.Cause != "" {
		e.cause = fmt.Errorf("%s", j.Cause)
	}
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRank records the worker rank that raised the error.
func WithRank(rank int) Option {
	return func(e *Error) {
		e.rank = rank
	}
}

// WithRunID records the run the error belongs to.
func WithRunID(id string) Option {
	return func(e *Error) {
		e.runID = id
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
		rank:      -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// InvalidInput creates a validation error. Runs are never attempted after one.
func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

// Precondition creates a lifecycle misuse error.
func Precondition(message string, opts ...Option) *Error {
	return New(ErrCodePrecondition, message, opts...)
}

// NotFound creates a not found error.
func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// CoordinationFailure creates an error for ranks that disagree about a
// collective call.
func CoordinationFailure(message string, opts ...Option) *Error {
	return New(ErrCodeCoordination, message, opts...)
}

// Corruption creates an error for an undecodable payload.
func Corruption(message string, opts ...Option) *Error {
	return New(ErrCodeCorruption, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
