package store

import "errors"

// Sentinel error kinds for this package. These allow errors.Is from callers.
var (
	ErrNotFound   = errors.New("not found")
	ErrConstraint = errors.New("constraint violation")
)
