package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type fileStorage struct {
	config FileConfig
}

type FileConfig struct {
	// Directory relative keys are resolved against. Absolute keys are used as is.
	Directory string
}

// NewFileStorage creates a new file storage backend
func NewFileStorage(ctx context.Context, f FileConfig) (Storage, error) {
	if f.Directory == "" {
		f.Directory = "."
	}

	return &fileStorage{
		config: f,
	}, nil
}

func (a *fileStorage) resolve(key string) string {
	key = strings.TrimPrefix(key, "file://")
	if filepath.IsAbs(key) {
		return filepath.Clean(key)
	}
	return filepath.Join(a.config.Directory, key)
}

func (a *fileStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	filePath := a.resolve(key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// A failed write leaves whatever was at filePath untouched.
	tmp, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filePath, nil
}

func (a *fileStorage) Get(ctx context.Context, url string) ([]byte, error) {
	data, err := os.ReadFile(a.resolve(url))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}
