package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps the document in memory. Saved documents are deep-copied
// through JSON so callers cannot alias stored entries.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemoryStore creates a store, optionally seeded with doc.
func NewMemoryStore(doc *Document) *MemoryStore {
	s := &MemoryStore{}
	if doc != nil {
		s.data, _ = json.Marshal(doc)
	}
	return s
}

// Load decodes the stored document.
func (s *MemoryStore) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return Document{}, ErrNotFound
	}
	var doc Document
	if err := json.Unmarshal(s.data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return doc, nil
}

// Save replaces the stored document.
func (s *MemoryStore) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.LastUpdated = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	s.mu.Lock()
	s.data = data
	s.saves++
	s.mu.Unlock()
	return nil
}

// Saves reports how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
