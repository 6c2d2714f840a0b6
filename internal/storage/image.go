// Package storage persists product images on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrEmptyImage      = errors.New("image is empty")
	ErrImageTooLarge   = errors.New("image exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported image type")
)

// DefaultAllowedTypes mirrors the formats the storefront can render.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif"}

type ImageStore interface {
	// Store validates and writes data, returning the stored path.
	Store(data []byte) (string, error)
	Delete(path string) error
}

type LocalImageStore struct {
	dir          string
	maxBytes     int64
	allowedTypes []string
}

func NewLocalImageStore(dir string, maxBytes int64, allowedTypes []string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultAllowedTypes
	}
	return &LocalImageStore{dir: dir, maxBytes: maxBytes, allowedTypes: allowedTypes}, nil
}

func (s *LocalImageStore) Store(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, max %d", ErrImageTooLarge, len(data), s.maxBytes)
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), s.allowedTypes...) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	path := filepath.Join(s.dir, uuid.NewString()+mtype.Extension())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// Delete removes a stored image. A missing file is not an error.
func (s *LocalImageStore) Delete(path string) error {
	if path == "" {
		return nil
	}
	if !s.owns(path) {
		return fmt.Errorf("delete image: %s is outside %s", path, s.dir)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

func (s *LocalImageStore) owns(path string) bool {
	rel, err := filepath.Rel(filepath.Clean(s.dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
