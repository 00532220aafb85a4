package api

import "errors"

// ErrUnknownFormat is returned for an unsupported analytics export format.
var ErrUnknownFormat = errors.New("unknown format")
