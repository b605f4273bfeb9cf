package auth

import "errors"

// ErrUnauthorized is returned for missing, malformed or wrong credentials.
var ErrUnauthorized = errors.New("unauthorized")
