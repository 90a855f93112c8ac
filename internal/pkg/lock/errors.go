package lock

import "errors"

// Lock-related errors.
var (
	// ErrLockTimeout is returned when the context deadline passes before the key is acquired.
	ErrLockTimeout = errors.New("lock acquisition timeout")
)
