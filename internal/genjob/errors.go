package genjob

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage error")
	ErrNotFound     = errors.New("job not found")

	// ErrLostClaim means a conditional write matched no row: the job is no
	// longer in the state this processor expected (timed out, or claimed elsewhere).
	ErrLostClaim = errors.New("job no longer owned by this processor")
)

const timedOutMessage = "job timed out"

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// ExternalAPIError is a generation API failure. It is recorded on the job,
// never returned to the submitter.
type ExternalAPIError struct {
	Op  string
	Err error
}

func (e *ExternalAPIError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ExternalAPIError) Unwrap() error { return e.Err }
