package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalBlobStore persists document blobs on disk under a base directory,
// addressed by content hash so duplicate uploads share a single file.
type LocalBlobStore struct {
	baseDir string
}

// NewLocalBlobStore ensures the base directory exists and returns a handle.
func NewLocalBlobStore(baseDir string) (*LocalBlobStore, error) {
	if baseDir == "" {
		baseDir = "./documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &LocalBlobStore{baseDir: baseDir}, nil
}

// Put writes the blob and returns its locator. The locator is a relative
// path derived from the SHA-256 of the contents.
func (s *LocalBlobStore) Put(data []byte, contentType string) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	locator := filepath.Join(digest[:2], digest[2:4], digest+extensionFor(contentType))

	path := filepath.Join(s.baseDir, locator)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare blob directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return locator, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return locator, nil
}

// Get reads a blob back by its locator.
func (s *LocalBlobStore) Get(locator string) ([]byte, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", locator, err)
	}
	return data, nil
}

// Delete removes a blob if present. Missing blobs are not an error so the
// call stays idempotent.
func (s *LocalBlobStore) Delete(locator string) error {
	path, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", locator, err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalBlobStore) Path(locator string) string {
	path, err := s.resolve(locator)
	if err != nil {
		return ""
	}
	return path
}

func (s *LocalBlobStore) resolve(locator string) (string, error) {
	cleaned := filepath.Clean(locator)
	if cleaned == "" || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid blob locator %q", locator)
	}
	return filepath.Join(s.baseDir, cleaned), nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ".bin"
	}
}
