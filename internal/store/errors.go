package store

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for callers to branch on with errors.Is.
var (
	// ErrNotFound means no entity matched the given id or prefix.
	ErrNotFound = errors.New("not found")

	// ErrCycle means a dependency edge would make a task transitively
	// block itself.
	ErrCycle = errors.New("dependency cycle")

	// ErrInvalidTransition means a status change outside the task state
	// machine was requested.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a field that failed validation. CLI callers map
// it to exit code 2.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// AmbiguousIDError reports a partial id matching more than one entity.
// Callers must show the candidate list.
type AmbiguousIDError struct {
	Partial    string
	Candidates []string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("ambiguous id %q matches %s", e.Partial, strings.Join(e.Candidates, ", "))
}

// IsValidation reports whether err is a caller-input problem rather than
// a store fault.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ae *AmbiguousIDError
	return errors.As(err, &ve) || errors.As(err, &ae) ||
		errors.Is(err, ErrCycle) || errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNotFound)
}
