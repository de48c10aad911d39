// Package errors provides the structured error taxonomy used across rectopt.
//
// Every failure that leaves a package boundary is an *Error carrying a code
// and a category. The category tells callers whether a run can be attempted
// again; the code names the failure precisely.
//
// # Categories
//
//   - Permanent: the run must not be attempted as configured (bad input,
//     lifecycle misuse).
//   - Transient: the transport or a peer failed; a fresh run may succeed.
//   - Internal: corrupted payloads, invariant violations, bugs.
//
// # Codes
//
//   - INVALID_INPUT: validation failure (non-positive iteration budget,
//     inverted bounds, unknown objective)
//   - PRECONDITION: lifecycle phase called out of order
//   - COORDINATION: ranks disagree about a collective call
//   - CORRUPTION: a wire payload could not be decoded
//   - TIMEOUT, CANCELED, UNAVAILABLE: collective receive aborted
//
// # Usage
//
//	err := errors.InvalidInput("iterations must be positive",
//	    errors.WithMetadata("iterations", "0"))
//
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // report to the caller, never run
//	}
//
// Errors marshal to JSON so they can be attached to published results:
//
//	data, _ := json.Marshal(err)
package errors
