package domain

import "errors"

// Error taxonomy shared by every engine component. Callers wrap these with
// fmt.Errorf("%w: ...") and the API boundary translates them to HTTP codes.
// The engine never silently coerces invalid input.
var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition marks a business rule blocking an otherwise valid request.
	ErrPrecondition = errors.New("precondition failed")

	// ErrInvalidTransition marks a status edge missing from the transition
	// table, including any attempt out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConcurrentModification marks an expected-status mismatch on a
	// transition request.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrNotFound marks an unknown claim, document, policy, or rule ID.
	ErrNotFound = errors.New("not found")
)
