package repositories

import "errors"

// ErrNotFound is returned when a requested record does not exist.
// Wrapped by implementations so callers can use errors.Is.
var ErrNotFound = errors.New("record not found")
