package store

import "errors"

// Sentinel error kinds. Callers use errors.Is against these; the store
// never returns a bare driver error to the rest of the core.
var (
	ErrNotFound     = errors.New("store: not found")
	ErrDuplicateKey = errors.New("store: duplicate key")
	ErrTransport    = errors.New("store: transport error")
)
