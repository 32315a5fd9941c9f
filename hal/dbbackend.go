package hal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/labcode-dev/labcode-log-server/interfaces"
)

// Virtual path layout for database-resident operation logs:
//
//	operations/            synthetic root directory
//	operations/{id}/       one directory per operation with a non-empty log
//	operations/{id}/log.txt  the log itself
const (
	operationsDir = "operations/"
	logFileName   = "log.txt"
)

var (
	operationDirPattern = regexp.MustCompile(`^operations/(\d+)/?$`)
	operationIDPattern  = regexp.MustCompile(`operations/(\d+)/`)
)

// IsOperationLogPath reports whether a virtual path addresses a
// database-resident operation log.
func IsOperationLogPath(path string) bool {
	return strings.Contains(path, operationsDir) && strings.HasSuffix(path, logFileName)
}

// ExtractOperationID parses the operation id out of a virtual path.
func ExtractOperationID(path string) (int64, bool) {
	m := operationIDPattern.FindStringSubmatch(path)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// DBBackend synthesizes a virtual filesystem view over operation log rows.
// It is the relational counterpart of the storage backends; routing helpers
// (IsOperationLogPath, ExtractOperationID) let the orchestrator decide where
// a path belongs before touching any store.
type DBBackend struct {
	ops interfaces.OperationLogStore
}

// NewDBBackend creates the relational content adapter.
func NewDBBackend(ops interfaces.OperationLogStore) *DBBackend {
	return &DBBackend{ops: ops}
}

// ListVirtualDirectories returns the synthetic directory entries visible at
// the requested hierarchy level. The root level shows a single operations/
// directory if and only if the run has at least one non-empty log; the
// operations/ level shows one directory per logged operation. No files are
// ever returned here.
func (b *DBBackend) ListVirtualDirectories(ctx context.Context, runID int64, prefix string) ([]ContentItem, error) {
	if prefix != "" && prefix != "operations/" && prefix != "operations" {
		return nil, nil
	}

	metas, err := b.ops.ListLoggedOperations(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logged operations: %w", err)
	}
	if len(metas) == 0 {
		return nil, nil
	}

	if prefix == "" {
		return []ContentItem{{
			Name:        "operations",
			Path:        operationsDir,
			Type:        "directory",
			ContentType: ContentTypeOther,
			Source:      SourceVirtual,
		}}, nil
	}

	items := make([]ContentItem, 0, len(metas))
	for _, m := range metas {
		items = append(items, ContentItem{
			Name:        strconv.FormatInt(m.OperationID, 10),
			Path:        fmt.Sprintf("operations/%d/", m.OperationID),
			Type:        "directory",
			ContentType: ContentTypeOther,
			Source:      SourceVirtual,
		})
	}
	return items, nil
}

// ListOperationLogs returns the terminal log.txt entry, and only when the
// prefix addresses a specific operation directory belonging to the run.
// Shallower prefixes yield nothing; directories come from
// ListVirtualDirectories instead.
func (b *DBBackend) ListOperationLogs(ctx context.Context, runID int64, prefix string) ([]ContentItem, error) {
	m := operationDirPattern.FindStringSubmatch(prefix)
	if m == nil {
		return nil, nil
	}
	operationID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, nil
	}

	meta, err := b.ops.GetOperationLogMeta(ctx, operationID)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch log meta for operation %d: %w", operationID, err)
	}
	if meta.RunID != runID {
		return nil, nil
	}

	return []ContentItem{{
		Name:         logFileName,
		Path:         fmt.Sprintf("operations/%d/%s", operationID, logFileName),
		Type:         "file",
		Size:         meta.Size,
		LastModified: meta.FinishedAt,
		ContentType:  ContentTypeOperationLog,
		Source:       SourceDatabase,
	}}, nil
}

// LoadOperationLog returns the log bytes for one operation, or
// interfaces.ErrObjectNotFound.
func (b *DBBackend) LoadOperationLog(ctx context.Context, operationID int64) ([]byte, error) {
	return b.ops.LoadOperationLog(ctx, operationID)
}
