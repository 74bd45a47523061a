// Package storage is the local content-addressed object store backing the
// file transfer data path. Objects are named by their BLAKE3 digest under a
// two-character fanout (objects/ab/abcd...), written via a temp file and
// renamed into place so a partially written object is never visible.
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"cargohold/internal/constants"
)

var (
	ErrInvalidHash    = errors.New("invalid object hash")
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectTooLarge = errors.New("object exceeds maximum allowed size")
)

// ObjectStore stores immutable objects under a root directory.
type ObjectStore struct {
	root     string
	maxBytes int64
}

// NewObjectStore creates a store rooted at dir, creating it if needed.
func NewObjectStore(dir string, maxBytes int64) (*ObjectStore, error) {
	root := filepath.Join(dir, constants.ObjectsDir)
	if err := os.MkdirAll(root, constants.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	return &ObjectStore{root: root, maxBytes: maxBytes}, nil
}

// objectPath returns the fanout path for a hash.
func (s *ObjectStore) objectPath(hash string) string {
	return filepath.Join(s.root, hash[:constants.ObjectFanoutChars], hash)
}

// Put streams an object into the store, hashing as it writes. Returns the
// BLAKE3 hex digest and the object size. Storing bytes that already exist
// is a no-op that returns the same digest.
func (s *ObjectStore) Put(reader io.Reader) (hash string, size int64, err error) {
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp object: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath) // no-op after successful rename
	}()

	hasher := blake3.New()
	limited := io.LimitReader(reader, s.maxBytes+1)
	size, err = io.Copy(io.MultiWriter(tmp, hasher), limited)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write object: %w", err)
	}
	if size > s.maxBytes {
		return "", 0, ErrObjectTooLarge
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to flush object: %w", err)
	}

	hash = hex.EncodeToString(hasher.Sum(nil))
	finalPath := s.objectPath(hash)

	if _, err := os.Stat(finalPath); err == nil {
		return hash, size, nil // dedup: already stored
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), constants.DirPermissions); err != nil {
		return "", 0, fmt.Errorf("failed to create fanout dir: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("failed to finalize object: %w", err)
	}

	return hash, size, nil
}

// Open returns a reader over a stored object and its size.
func (s *ObjectStore) Open(hash string) (io.ReadCloser, int64, error) {
	if !IsValidHash(hash) {
		return nil, 0, ErrInvalidHash
	}

	path := s.objectPath(hash)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, ErrObjectNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open object: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat object: %w", err)
	}

	return file, stat.Size(), nil
}

// Exists reports whether an object is stored.
func (s *ObjectStore) Exists(hash string) bool {
	if !IsValidHash(hash) {
		return false
	}
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}
