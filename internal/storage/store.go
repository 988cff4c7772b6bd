package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ DocumentStore = (*FilesystemDocumentStore)(nil)

// DocumentStore abstracts the storage backend for uploaded documents
// (proof files, policy PDFs). A stored reference is an opaque string
// valid only for the store that issued it.
type DocumentStore interface {
	// Store persists the content and returns its reference.
	Store(ctx context.Context, category, filename string, content []byte) (string, error)
	// Open returns a readable stream for the stored reference.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the stored object.
	Delete(ctx context.Context, ref string) error
}

// FilesystemDocumentStore keeps documents on the local filesystem,
// organised by category/year/month.
type FilesystemDocumentStore struct {
	root string
}

// NewFilesystemDocumentStore initialises a store rooted at dir.
func NewFilesystemDocumentStore(dir string) (*FilesystemDocumentStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("document store: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("document store: ensure root directory: %w", err)
	}
	return &FilesystemDocumentStore{root: dir}, nil
}

// Store writes the content under a fresh name derived from the original
// filename's extension.
func (s *FilesystemDocumentStore) Store(_ context.Context, category, filename string, content []byte) (string, error) {
	if s == nil {
		return "", errors.New("document store: store not initialised")
	}
	if len(content) == 0 {
		return "", errors.New("document store: content is empty")
	}

	category = sanitizeFragment(category)
	if category == "" {
		category = "misc"
	}

	now := time.Now().UTC()
	dir := filepath.Join(s.root, category, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("document store: mkdir %s: %w", dir, err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	name := uuid.NewString() + ext
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("document store: write %s: %w", path, err)
	}

	ref, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", fmt.Errorf("document store: relativise %s: %w", path, err)
	}
	return filepath.ToSlash(ref), nil
}

// Open returns the stored content for reading.
func (s *FilesystemDocumentStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("document store: open %s: %w", ref, err)
	}
	return file, nil
}

// Delete removes the stored object. Deleting a missing reference is not
// an error.
func (s *FilesystemDocumentStore) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("document store: delete %s: %w", ref, err)
	}
	return nil
}

// resolve maps a reference back to an absolute path, refusing anything
// that escapes the root.
func (s *FilesystemDocumentStore) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("document store: reference is required")
	}

	path := filepath.Join(s.root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("document store: invalid reference %q", ref)
	}
	return path, nil
}

func sanitizeFragment(fragment string) string {
	fragment = strings.TrimSpace(strings.ToLower(fragment))
	var b bytes.Buffer
	for _, r := range fragment {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
