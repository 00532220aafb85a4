package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/boostcalc/pkg/logger"
)

const defaultFileMode fs.FileMode = 0o644

// FileStore keeps the registry document in a JSON file. Save writes a
// temporary file next to the target and renames it over the target, so
// readers never observe a partially written document.
type FileStore struct {
	path   string
	mode   fs.FileMode
	indent bool
	now    func() time.Time

	mu sync.Mutex
}

// NewFileStore creates a store for the document at path.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path:   path,
		mode:   defaultFileMode,
		indent: true,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Load reads and decodes the document.
func (s *FileStore) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return Document{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, fmt.Errorf("%w: %s is empty", ErrDecode, s.path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %s: %w", ErrDecode, s.path, err)
	}
	return doc, nil
}

// Save stamps lastUpdated and atomically replaces the document.
func (s *FileStore) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.LastUpdated = s.now().UTC().Format(time.RFC3339Nano)
	if doc.TotalParticipants != 0 {
		doc.TotalParticipants = len(doc.Participants)
	}

	var (
		data []byte
		err  error
	)
	if s.indent {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // registry directory is shared with admin tooling
		return fmt.Errorf("%w: mkdir %s: %w", ErrWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if rerr := os.Remove(tmpName); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			logger.Get().Warn(ctx, "failed to remove temp registry file", logger.String("path", tmpName), logger.Error(rerr))
		}
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp: %w", ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync temp: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp: %w", ErrWrite, err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %w", ErrWrite, err)
	}
	return nil
}
