package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrFileNotFound = errors.New("file not found")

// Store defines the interface for attachment storage backends.
type Store interface {
	Save(name string, data io.Reader) (int64, error)
	GetPath(name string) (string, error)
	Delete(name string) error
	EnsureDir() error
}

// FileSystemStore keeps attachments as flat files in a single directory.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the upload directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data to a file called name, replacing any existing file.
// Returns the number of bytes written.
func (fs *FileSystemStore) Save(name string, data io.Reader) (int64, error) {
	filePath, err := fs.filePath(name)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}

	n, err := io.Copy(file, data)
	if err != nil {
		file.Close()
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to flush file: %w", err)
	}

	return n, nil
}

// GetPath returns the path to a stored file, or ErrFileNotFound.
func (fs *FileSystemStore) GetPath(name string) (string, error) {
	filePath, err := fs.filePath(name)
	if err != nil {
		return "", ErrFileNotFound
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	return filePath, nil
}

// Delete removes a stored file. A missing file is not an error.
func (fs *FileSystemStore) Delete(name string) error {
	filePath, err := fs.filePath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// filePath keeps every name inside basePath.
func (fs *FileSystemStore) filePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(fs.basePath, name), nil
}
