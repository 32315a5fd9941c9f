package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labcode-dev/labcode-log-server/interfaces"
)

// FileBackend implements a storage backend over a local directory tree. All
// paths are resolved relative to the configured root and must not escape it.
type FileBackend struct {
	baseDir string
	log     *slog.Logger
}

// NewFileBackend creates a local filesystem backend rooted at the configured
// base path, creating the directory if needed.
func NewFileBackend(cfg LocalConfig, log *slog.Logger) (*FileBackend, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base path is empty")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	log.Info("file backend initialized", slog.String("path", cfg.BasePath))

	return &FileBackend{
		baseDir: cfg.BasePath,
		log:     log,
	}, nil
}

// resolve maps a storage path to an absolute filesystem path, rejecting any
// path that would escape the base directory.
func (b *FileBackend) resolve(path string) (string, error) {
	full := filepath.Join(b.baseDir, filepath.FromSlash(path))
	rel, err := filepath.Rel(b.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes storage root", interfaces.ErrInvalidPath, path)
	}
	return full, nil
}

// Load reads the full file at path. Returns interfaces.ErrObjectNotFound for
// missing files.
func (b *FileBackend) Load(ctx context.Context, path string) ([]byte, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	return data, nil
}

// LoadStream opens the file at path for sequential reading.
func (b *FileBackend) LoadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open file %q: %w", path, err)
	}
	return f, nil
}

// ListObjects walks the tree under prefix and returns every regular file,
// keyed by its slash-separated path relative to the backend root. A missing
// prefix directory yields an empty listing.
func (b *FileBackend) ListObjects(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	root, err := b.resolve(prefix)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var objects []interfaces.ObjectInfo
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.baseDir, p)
		if err != nil {
			return err
		}
		objects = append(objects, interfaces.ObjectInfo{
			Key:          filepath.ToSlash(rel),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files under %q: %w", prefix, err)
	}
	return objects, nil
}

// ListWithDirectories returns one hierarchy level under prefix. The
// delimiter argument is accepted for interface compatibility; the filesystem
// hierarchy is always slash-delimited.
func (b *FileBackend) ListWithDirectories(ctx context.Context, prefix, delimiter string) (interfaces.ListResult, error) {
	root, err := b.resolve(prefix)
	if err != nil {
		return interfaces.ListResult{}, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return interfaces.ListResult{}, nil
		}
		return interfaces.ListResult{}, fmt.Errorf("failed to read directory %q: %w", prefix, err)
	}

	var result interfaces.ListResult
	for _, entry := range entries {
		rel, err := filepath.Rel(b.baseDir, filepath.Join(root, entry.Name()))
		if err != nil {
			return interfaces.ListResult{}, err
		}
		key := filepath.ToSlash(rel)
		if entry.IsDir() {
			result.CommonPrefixes = append(result.CommonPrefixes, key+"/")
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return interfaces.ListResult{}, err
		}
		result.Objects = append(result.Objects, interfaces.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}
	return result, nil
}

// Exists reports whether a regular file exists at path.
func (b *FileBackend) Exists(ctx context.Context, path string) (bool, error) {
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// GetMetadata returns file metadata, or interfaces.ErrObjectNotFound.
func (b *FileBackend) GetMetadata(ctx context.Context, path string) (*interfaces.ObjectMetadata, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	return &interfaces.ObjectMetadata{
		Size:         info.Size(),
		LastModified: info.ModTime(),
		ContentType:  "application/octet-stream",
	}, nil
}

// GeneratePresignedURL always reports the unsupported-operation sentinel;
// the filesystem has nothing to sign.
func (b *FileBackend) GeneratePresignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	return "", interfaces.ErrPresignNotSupported
}

// Save writes content at path, creating parent directories as needed.
func (b *FileBackend) Save(ctx context.Context, path string, content []byte, contentType string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", path, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file %q: %w", path, err)
	}
	b.log.Debug("file saved", slog.String("path", path), slog.Int("size", len(content)))
	return nil
}

// Delete removes the file at path. Deleting a missing file is not an error.
func (b *FileBackend) Delete(ctx context.Context, path string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %q: %w", path, err)
	}
	return nil
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}
