package rules

import "errors"

// Sentinel errors for rule operations. Check with errors.Is().
var (
	// ErrNotFound is returned when a rule does not exist.
	ErrNotFound = errors.New("rules: not found")

	// ErrInvalidRule is returned when a rule fails validation.
	ErrInvalidRule = errors.New("rules: invalid rule")
)
