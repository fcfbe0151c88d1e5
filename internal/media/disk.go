package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DiskStorage keeps media in a local directory served by the HTTP server.
// It backs local development when no bucket is available.
type DiskStorage struct {
	dir     string
	baseURL string
	prefix  string
}

// NewDiskStorage stores files under dir and links them below baseURL.
func NewDiskStorage(dir, baseURL, prefix string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStorage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), prefix: prefix}, nil
}

// Dir reports the directory files are written to.
func (d *DiskStorage) Dir() string { return d.dir }

// Upload moves the file at localPath into the media directory.
func (d *DiskStorage) Upload(ctx context.Context, localPath string) (Asset, error) {
	if strings.TrimSpace(localPath) == "" {
		return Asset{}, ErrNoFile
	}
	defer removeLocal(ctx, localPath)

	key := objectKey(d.prefix, localPath)
	target := filepath.Join(d.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Asset{}, fmt.Errorf("create media subdir: %w", err)
	}

	if err := copyFile(localPath, target); err != nil {
		return Asset{}, err
	}
	return Asset{URL: publicURL(d.baseURL, key), PublicID: key}, nil
}

// Delete removes a stored file. Missing files are ignored.
func (d *DiskStorage) Delete(_ context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	clean := filepath.Clean("/" + publicID)
	if err := os.Remove(filepath.Join(d.dir, filepath.FromSlash(clean))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete media %s: %w", publicID, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
