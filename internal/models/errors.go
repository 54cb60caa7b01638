package models

import "fmt"

// ValidationError is returned for input rejected before any network or storage call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var (
	ErrEmptyGroupName = &ValidationError{Field: "name", Reason: "must not be empty"}
	ErrEmptyMessage   = &ValidationError{Field: "message", Reason: "text or attachment required"}
)
