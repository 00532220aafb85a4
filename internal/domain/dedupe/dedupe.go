// Package dedupe tracks keys already seen during a pass so each participant
// is processed at most once.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen. Empty keys are never recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so it may be processed again.
	Unrecord(ctx context.Context, key string)

	Size() int
}

type setDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	norm func(string) string
}

// New creates an in-memory deduper.
func New(opts ...Option) Deduper {
	d := &setDeduper{
		seen: make(map[string]struct{}),
		norm: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *setDeduper) SeenAndRecord(_ context.Context, key string) bool {
	key = d.norm(key)
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *setDeduper) Unrecord(_ context.Context, key string) {
	key = d.norm(key)
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

func (d *setDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Unique keeps the first item per key, preserving order, and returns the
// dropped duplicates separately. Items with an empty key are always kept.
func Unique[T any](ctx context.Context, items []T, key func(T) string, opts ...Option) (kept, dropped []T) {
	d := New(opts...)
	kept = make([]T, 0, len(items))
	for _, it := range items {
		if d.SeenAndRecord(ctx, key(it)) {
			dropped = append(dropped, it)
			continue
		}
		kept = append(kept, it)
	}
	return kept, dropped
}
