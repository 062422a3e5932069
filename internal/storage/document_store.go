package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DocumentKind names a request document slot.
type DocumentKind string

const (
	KindProforma      DocumentKind = "proforma"
	KindPurchaseOrder DocumentKind = "purchase_order"
	KindReceipt       DocumentKind = "receipt"
)

// DocumentStore persists request document blobs and returns opaque paths
// relative to its base directory. The persistence rows store only these
// relative paths.
type DocumentStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewDocumentStore creates a store rooted at baseDir.
func NewDocumentStore(baseDir string, logger *zap.Logger) *DocumentStore {
	return &DocumentStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes a document blob for a request and returns its relative path.
// The original filename is sanitized to its base name so uploads cannot
// escape the request's directory.
func (s *DocumentStore) Save(requestID string, kind DocumentKind, filename string, content []byte) (string, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "document"
	}

	relPath := filepath.Join(requestID, fmt.Sprintf("%s_%s", kind, name))
	fullPath := filepath.Join(s.baseDir, relPath)

	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create document directory",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write document",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write document: %w", err)
	}

	s.logger.Debug("Document saved",
		zap.String("path", relPath),
		zap.Int("size", len(content)))

	return relPath, nil
}

// Read loads a previously saved document by its relative path.
func (s *DocumentStore) Read(relPath string) ([]byte, error) {
	fullPath := filepath.Join(s.baseDir, relPath)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

// FullPath resolves a relative document path below the base directory.
func (s *DocumentStore) FullPath(relPath string) (string, error) {
	fullPath := filepath.Join(s.baseDir, relPath)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}
	return fullPath, nil
}

// validatePath rejects anything that resolves outside the base directory.
func (s *DocumentStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if absPath != absBase && !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path %s escapes storage directory", fullPath)
	}
	return nil
}
