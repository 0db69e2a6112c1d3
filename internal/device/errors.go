package device

import "errors"

// Sentinel errors for device operations. Check with errors.Is().
var (
	// ErrNotFound is returned when a device does not exist.
	ErrNotFound = errors.New("device: not found")
)
