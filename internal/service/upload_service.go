package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"path/filepath"
	"strings"

	"github.com/lithammer/shortuuid/v4"

	"github.com/pais-staff/mediaflow/internal/client"
	"github.com/pais-staff/mediaflow/internal/model"
)

var allowedTypes = map[model.AssetKind]map[string]string{
	model.AssetKindImage: {
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	},
	model.AssetKindAudio: {
		"audio/mpeg":  ".mp3",
		"audio/mp3":   ".mp3",
		"audio/wav":   ".wav",
		"audio/x-wav": ".wav",
		"audio/mp4":   ".m4a",
		"audio/x-m4a": ".m4a",
		"audio/aac":   ".aac",
	},
}

// UploadService stores the images and audio tracks staff hand to video jobs
type UploadService struct {
	storage client.StorageClient
	maxSize int64
}

func NewUploadService(storage client.StorageClient, maxSize int64) *UploadService {
	return &UploadService{storage: storage, maxSize: maxSize}
}

// Upload validates and stores one file under uploads/<kind>/
func (s *UploadService) Upload(ctx context.Context, kind model.AssetKind, filename, contentType string, size int64, body io.Reader) (*model.UploadResponse, error) {
	ext, err := s.extensionFor(kind, filename, contentType)
	if err != nil {
		return nil, err
	}
	if s.maxSize > 0 && size > s.maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, size, s.maxSize)
	}

	key := fmt.Sprintf("uploads/%s/%s%s", kind, shortuuid.New(), ext)

	if s.storage == nil {
		return &model.UploadResponse{Path: key, Kind: kind, Size: size}, nil
	}

	location, err := s.storage.Upload(ctx, key, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", kind, err)
	}

	log.Printf("[Upload] Stored %s (%d bytes) at %s", kind, size, location)

	return &model.UploadResponse{Path: location, Kind: kind, Size: size}, nil
}

// extensionFor picks the stored extension, preferring the client's filename
func (s *UploadService) extensionFor(kind model.AssetKind, filename, contentType string) (string, error) {
	allowed, ok := allowedTypes[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown asset kind %q", ErrUnsupportedFile, kind)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	ext, ok := allowed[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: %s is not an accepted %s type", ErrUnsupportedFile, contentType, kind)
	}

	if fromName := strings.ToLower(filepath.Ext(filename)); fromName != "" {
		for _, e := range allowed {
			if e == fromName || (fromName == ".jpeg" && e == ".jpg") {
				return fromName, nil
			}
		}
	}
	return ext, nil
}
