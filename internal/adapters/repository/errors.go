package repository

import "errors"

// Sentinel kinds for registry storage errors.
var (
	ErrNotFound = errors.New("registry document not found")
	ErrDecode   = errors.New("registry document malformed")
	ErrWrite    = errors.New("registry document write failed")
)
