// Package media stores user images (avatars and cover images) and hands back
// public URLs for them.
package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNoFile is returned when an upload is attempted without a local file.
var ErrNoFile = errors.New("media: no file to upload")

// Asset is a stored object: where clients fetch it and how to delete it later.
type Asset struct {
	URL      string
	PublicID string
}

// objectKey builds a collision-free key under prefix that keeps the file extension.
func objectKey(prefix, localPath string) string {
	key := uuid.NewString() + strings.ToLower(filepath.Ext(localPath))
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func publicURL(baseURL, key string) string {
	if baseURL == "" {
		return key
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + key
}

// SaveTemp copies an uploaded multipart file into dir and returns its path.
// The caller owns the file and must remove it.
func SaveTemp(dir string, header *multipart.FileHeader) (string, error) {
	if header == nil {
		return "", ErrNoFile
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(dir, "upload-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return dst.Name(), nil
}
