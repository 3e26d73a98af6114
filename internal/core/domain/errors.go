package domain

import "errors"

var (
	// ErrValidation marks bad input. It is never retried automatically.
	ErrValidation = errors.New("validation error")

	// ErrCannotAllocate is the batch-level "not enough capacity" result. The
	// allocation scan moves on to the next batch only for this error.
	ErrCannotAllocate = errors.New("batch cannot satisfy order line")
)

// ValidationError carries a caller-facing message and matches ErrValidation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &ValidationError{Msg: msg} }
