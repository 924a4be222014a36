// Package errs holds error kinds shared by every aggregate. Package-level
// sentinels wrap these so callers can match either the specific or the
// general kind with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConcurrentConflict = errors.New("concurrent modification conflict")
)

// NotFound builds a sentinel that matches ErrNotFound.
func NotFound(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

// Conflict builds a sentinel that matches ErrConcurrentConflict.
func Conflict(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConcurrentConflict)
}
