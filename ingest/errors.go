package ingest

import (
	"errors"

	"github.com/padraicbc/tracker/auth"
)

// Sentinel error kinds for submissions. These allow errors.Is from callers.
var (
	ErrUnauthorized   = auth.ErrUnauthorized
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnprocessable  = errors.New("unprocessable entity")
)
