package errors

// ErrorCategory classifies errors by how a caller should react to them.
type ErrorCategory string

const (
	// CategoryTransient indicates the transport or a peer failed mid-run.
	// A new run over a healthy worker set may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates the run was rejected as configured.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates corrupted state or a broken invariant.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if a fresh run may succeed.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies a specific failure.
type ErrorCode string

const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Peer did not contribute in time
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Bus closed or unreachable
	ErrCodeCanceled    ErrorCode = "CANCELED"    // Context ended during a collective

	// Permanent errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Validation failure
	ErrCodePrecondition ErrorCode = "PRECONDITION"  // Lifecycle misuse
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Unknown objective or result

	// Internal errors
	ErrCodeCoordination ErrorCode = "COORDINATION" // Ranks disagree about a collective
	ErrCodeCorruption   ErrorCode = "CORRUPTION"   // Undecodable payload
	ErrCodeInternal     ErrorCode = "INTERNAL"     // Anything else
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeCanceled:
		return CategoryTransient
	case ErrCodeInvalidInput, ErrCodePrecondition, ErrCodeNotFound:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:      "peer timed out",
	ErrCodeUnavailable:  "transport unavailable",
	ErrCodeCanceled:     "operation canceled",
	ErrCodeInvalidInput: "invalid input provided",
	ErrCodePrecondition: "precondition failed",
	ErrCodeNotFound:     "not found",
	ErrCodeCoordination: "coordination failure",
	ErrCodeCorruption:   "corrupted payload",
	ErrCodeInternal:     "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
