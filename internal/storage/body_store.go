// Package storage keeps large message bodies on disk instead of in the
// database. Rows carry an opaque body reference; the store resolves it.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Security errors
var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrBodyNotFound  = errors.New("body not found")
	ErrBodyTooLarge  = errors.New("body exceeds size limit")
)

// MaxBodySize is the maximum allowed body size (4 MB)
const MaxBodySize = 4 * 1024 * 1024

// BodyStore defines the interface for message body storage operations
type BodyStore interface {
	Save(body []byte) (string, error)
	Get(ref string) ([]byte, error)
	Delete(ref string) error
}

// localStore implements BodyStore using the local filesystem
type localStore struct {
	basePath string
}

// NewLocalStore creates a new localStore instance
func NewLocalStore(basePath string) (BodyStore, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &localStore{basePath: basePath}, nil
}

// validateRef ensures the reference resolves within basePath (prevents
// traversal)
func (s *localStore) validateRef(ref string) (string, error) {
	cleanPath := filepath.Clean(ref)

	// Prevent absolute paths
	if filepath.IsAbs(cleanPath) {
		return "", ErrPathTraversal
	}

	// Prevent path traversal
	if strings.Contains(cleanPath, "..") {
		return "", ErrPathTraversal
	}

	fullPath := filepath.Join(s.basePath, cleanPath)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("invalid body reference: %w", err)
	}

	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	// Security check: ensure file is within allowed directory
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) &&
		absPath != absBase {
		return "", ErrPathTraversal
	}

	return absPath, nil
}

// Save stores a body and returns its reference
func (s *localStore) Save(body []byte) (string, error) {
	if len(body) > MaxBodySize {
		return "", ErrBodyTooLarge
	}

	// Content-independent name; a subdirectory off the first two chars
	// keeps directories from growing unbounded
	name := uuid.New().String() + ".html"
	subDir := name[:2]
	dirPath := filepath.Join(s.basePath, subDir)

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	ref := filepath.Join(subDir, name)
	fullPath := filepath.Join(s.basePath, ref)

	if err := os.WriteFile(fullPath, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write body: %w", err)
	}

	return ref, nil
}

// Get retrieves a body by its reference
func (s *localStore) Get(ref string) ([]byte, error) {
	fullPath, err := s.validateRef(ref)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBodyNotFound
		}
		return nil, fmt.Errorf("failed to open body: %w", err)
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// Delete removes a body by its reference
func (s *localStore) Delete(ref string) error {
	fullPath, err := s.validateRef(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			// Body already gone, not an error
			return nil
		}
		return fmt.Errorf("failed to delete body: %w", err)
	}

	return nil
}
