package hub

import "errors"

// Sentinel error kinds for this package.
var (
	ErrClosed          = errors.New("hub closed")
	ErrObserverTooSlow = errors.New("observer fell behind")
)
