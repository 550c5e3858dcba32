package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pais-staff/mediaflow/internal/config"
)

// StorageClient defines the interface for object storage operations
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	GetPublicURL(key string) string
}

// LocalStorage implements StorageClient on a directory. Returned
// locations are file paths rooted at the output directory.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalStorage{root: root}, nil
}

// Upload writes body to root/key and returns the file path
func (s *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, body)
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	log.Printf("[Storage] Wrote %s (%d bytes, %s)", path, n, contentType)
	return path, nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetSignedURL has no meaning on disk; the plain path is returned
func (s *LocalStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s.resolve(key)
}

func (s *LocalStorage) GetPublicURL(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// resolve maps key under root and rejects keys that escape it
func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// NewStorage returns R2 when it is fully configured and local disk otherwise
func NewStorage(r2 *config.R2Config, media *config.MediaConfig) (StorageClient, error) {
	if R2Enabled(r2) {
		c, err := NewR2Client(r2)
		if err != nil {
			return nil, err
		}
		log.Printf("[Storage] Using R2 bucket %s", r2.BucketName)
		return c, nil
	}
	log.Printf("[Storage] R2 not configured, writing to %s", media.OutputDir)
	return NewLocalStorage(media.OutputDir)
}
