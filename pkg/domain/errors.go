package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a contribution or stop does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDependenciesNotMet is returned when a contribution has already
	// been decided and cannot be evaluated again.
	ErrDependenciesNotMet = errors.New("dependencies not met")
	// ErrProcessing covers internal failures that are not the caller's fault.
	ErrProcessing = errors.New("processing failure")
)

// ValidationError rejects a request the moderator can correct, e.g. an
// empty patch or a field value outside its allowed range.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failure: " + e.Reason
}

func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConversionError signals stored data that no longer satisfies the
// entity's own invariants, typically legacy rows written before a
// constraint existed.
type ConversionError struct {
	Reason string
}

func (e *ConversionError) Error() string {
	return "conversion failure: " + e.Reason
}
