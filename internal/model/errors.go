package model

import (
	"errors"
	"fmt"
)

// Error markers shared by the store, the matching engine and the API. Callers
// classify failures with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation error")
)

// Errorf formats a message and tags it with the given marker.
func Errorf(marker error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", marker, fmt.Sprintf(format, args...))
}
