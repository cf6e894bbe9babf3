package model

import "errors"

// Error kinds. Concrete errors wrap one of these so callers can classify them
// with errors.Is.
var (
	// ErrConfig is fatal at startup: the split file or config cannot be used.
	ErrConfig = errors.New("config error")
	// ErrProtocol marks a malformed or unknown command; it is logged and dropped.
	ErrProtocol = errors.New("protocol error")
	// ErrPersistence marks a failed save; in-memory state is unaffected.
	ErrPersistence = errors.New("persistence error")
	// ErrSurface is fatal at startup: the render surface cannot be acquired.
	ErrSurface = errors.New("surface error")
)
