package repository

import (
	"io/fs"
	"time"
)

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithFileMode sets the permissions of the written document.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *FileStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// WithIndent toggles pretty-printed output.
func WithIndent(indent bool) Option {
	return func(s *FileStore) {
		s.indent = indent
	}
}

// WithClock overrides the time source used for lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}
