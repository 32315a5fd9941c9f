package interfaces

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound indicates no content exists at the requested path.
	ErrObjectNotFound = errors.New("object not found")

	// ErrPresignNotSupported indicates the backend cannot generate
	// pre-signed URLs. Callers fall back to an application route.
	ErrPresignNotSupported = errors.New("presigned URLs not supported by backend")

	// ErrWriteNotSupported indicates the backend is read-only.
	ErrWriteNotSupported = errors.New("write operations not supported by backend")

	// ErrBackendNotRegistered indicates an unknown storage mode name was
	// requested from the registry.
	ErrBackendNotRegistered = errors.New("storage backend not registered")

	// ErrInvalidPath indicates a path that escapes the backend root.
	ErrInvalidPath = errors.New("invalid storage path")
)

// DefaultChunkSize is the buffer size for streaming reads.
const DefaultChunkSize = 64 * 1024

// DefaultPresignTTL is the validity period for generated download URLs.
const DefaultPresignTTL = time.Hour

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectMetadata describes an object without its content.
type ObjectMetadata struct {
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListResult holds one hierarchy level of a delimited listing.
type ListResult struct {
	// Objects are the files directly under the requested prefix.
	Objects []ObjectInfo

	// CommonPrefixes are the immediate subdirectories, each ending in
	// the delimiter.
	CommonPrefixes []string
}

// StorageBackend is the uniform contract over a single physical storage
// technology. Read operations are the hot path; Save and Delete are optional
// and return ErrWriteNotSupported on read-only backends.
type StorageBackend interface {
	// Load reads the full content at path. Returns ErrObjectNotFound if
	// nothing exists there.
	Load(ctx context.Context, path string) ([]byte, error)

	// LoadStream opens the content at path for sequential reading. The
	// caller must close the returned reader; closing early releases the
	// underlying connection or file handle.
	LoadStream(ctx context.Context, path string) (io.ReadCloser, error)

	// ListObjects returns every object under prefix. Pagination is
	// followed internally; the caller never sees partial pages.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// ListWithDirectories returns one hierarchy level under prefix,
	// split into files and immediate subdirectories.
	ListWithDirectories(ctx context.Context, prefix, delimiter string) (ListResult, error)

	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// GetMetadata returns size, modification time and content type for
	// the object at path, or ErrObjectNotFound.
	GetMetadata(ctx context.Context, path string) (*ObjectMetadata, error)

	// GeneratePresignedURL returns a time-limited download URL, or
	// ErrPresignNotSupported on backends without signing support.
	GeneratePresignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Save writes content at path. Optional; never called on HAL read paths.
	Save(ctx context.Context, path string, content []byte, contentType string) error

	// Delete removes the object at path. Optional.
	Delete(ctx context.Context, path string) error

	// Name returns a unique identifier for this backend instance.
	Name() string
}
