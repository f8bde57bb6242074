package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gamebridge/internal/errs"
	logx "gamebridge/pkg/logx"
)

// fileStore keeps the registry in one JSON document.
//
// Save writes <path>.<rand>.tmp in the same directory, fsyncs it and renames
// it over <path>, so a concurrent Load sees either the old or the new file.
type fileStore struct {
	path string
	log  logx.Logger

	mu sync.Mutex
}

func newFileStore(path string, log logx.Logger) *fileStore {
	return &fileStore{path: path, log: log}
}

func (s *fileStore) Load(ctx context.Context) (Document, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("registry document not found; starting empty", logx.String("path", s.path))
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}
	return decodeDocument(s.path, b)
}

func decodeDocument(path string, b []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&doc); err != nil {
		return nil, errs.CorruptState(err, "registry document "+path+" is not valid")
	}
	// reject trailing tokens (e.g. two documents concatenated)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errs.CorruptState(err, "registry document "+path+" has trailing data")
	}
	if doc == nil {
		doc = Document{}
	}
	for g, cats := range doc {
		if cats == nil {
			delete(doc, g)
		}
	}
	return doc, nil
}

func (s *fileStore) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("storage: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("storage: rename: %w", err)
	}
	// Persist the rename itself. Not all platforms allow syncing a directory.
	if d, err := os.Open(dir); err == nil {
		if err := d.Sync(); err != nil {
			s.log.Debug("directory sync failed", logx.String("dir", dir), logx.Err(err))
		}
		_ = d.Close()
	}
	s.log.Debug("registry saved", logx.String("path", s.path), logx.Int("entries", doc.Len()))
	return nil
}

func (s *fileStore) Close() error { return nil }
