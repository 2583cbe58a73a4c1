// internal/blob/blob.go
// Package blob stores uploaded file attachments.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store persists attachment bytes and hands back an opaque reference that
// goes into the message record.
type Store interface {
	Save(r io.Reader, maxBytes int64) (ref string, size int64, err error)
	Open(ref string) (io.ReadCloser, error)
	Delete(ref string) error
}

// DiskStore keeps attachments as uuid-named files under a single directory.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Save(r io.Reader, maxBytes int64) (string, int64, error) {
	ref := uuid.New().String()
	f, err := os.Create(filepath.Join(s.dir, ref))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create attachment file: %w", err)
	}
	defer f.Close()

	// Copy one byte past the limit so oversized uploads are detected
	// without buffering the whole body.
	size, err := io.Copy(f, io.LimitReader(r, maxBytes+1))
	if err != nil {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("failed to write attachment: %w", err)
	}
	if size > maxBytes {
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("attachment exceeds %d bytes", maxBytes)
	}
	return ref, size, nil
}

func (s *DiskStore) Open(ref string) (io.ReadCloser, error) {
	// Refs are uuids we minted; reject anything that does not parse so a
	// crafted ref cannot escape the upload directory.
	if _, err := uuid.Parse(ref); err != nil {
		return nil, fmt.Errorf("invalid attachment reference")
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	return f, nil
}

func (s *DiskStore) Delete(ref string) error {
	if _, err := uuid.Parse(ref); err != nil {
		return fmt.Errorf("invalid attachment reference")
	}
	return os.Remove(filepath.Join(s.dir, ref))
}
