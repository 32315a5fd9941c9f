package hal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/labcode-dev/labcode-log-server/interfaces"
	"github.com/labcode-dev/labcode-log-server/metrics"
	"github.com/labcode-dev/labcode-log-server/storage"
)

// Application routes used as download references when no presigned URL is
// possible.
const (
	dbContentRoutePattern  = "/api/v2/storage/db-content/%d?path=%s&op_id=%d"
	directDownloadRoutePat = "/api/storage/download-direct?path=%s"
)

// HybridAccessLayer answers list, read, download-reference and
// storage-description queries for a run and virtual path, merging backend
// files and database-resident pseudo-files into one tree.
//
// All operations are synchronous; no lock is held across backend or
// relational calls. Backends are constructed lazily and cached for the
// orchestrator's lifetime.
type HybridAccessLayer struct {
	runs     interfaces.RunStore
	db       *DBBackend
	backends *backendCache
	resolver *ModeResolver
	cfg      *storage.Config
	log      *slog.Logger
}

// New creates a hybrid access layer over the given stores, backend registry
// and resolved storage configuration.
func New(runs interfaces.RunStore, ops interfaces.OperationLogStore, registry *storage.BackendRegistry, cfg *storage.Config, log *slog.Logger) *HybridAccessLayer {
	backends := newBackendCache(registry, cfg, log)
	return &HybridAccessLayer{
		runs:     runs,
		db:       NewDBBackend(ops),
		backends: backends,
		resolver: newModeResolver(runs, ops, backends, log),
		cfg:      cfg,
		log:      log,
	}
}

// Resolver exposes the storage mode resolver for run-list glue code that
// wants batch inference.
func (h *HybridAccessLayer) Resolver() *ModeResolver {
	return h.resolver
}

// ListContents returns the merged content tree for a run at the given
// virtual path prefix. Dispatch by persisted mode: object store only for s3
// runs; synthetic directories, database log files and (for backward
// compatibility) local files for local runs; every source best effort for
// unknown and hybrid runs, with per-source failures swallowed. Results are
// deduplicated by path, first seen wins.
func (h *HybridAccessLayer) ListContents(ctx context.Context, runID int64, prefix string) ([]ContentItem, error) {
	run, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	mode := ParseStorageMode(run.StorageMode)

	var items []ContentItem

	switch mode {
	case ModeS3:
		items, err = h.listFileContentsAt(ctx, run, storage.ModeS3, prefix)
		if err != nil {
			return nil, err
		}

	case ModeLocal:
		dirs, err := h.db.ListVirtualDirectories(ctx, runID, prefix)
		if err != nil {
			return nil, err
		}
		items = append(items, dirs...)

		logs, err := h.db.ListOperationLogs(ctx, runID, prefix)
		if err != nil {
			return nil, err
		}
		items = append(items, logs...)

		// Older local-mode runs may also have plain files on disk.
		if fileItems, err := h.listFileContentsAt(ctx, run, storage.ModeLocal, prefix); err != nil {
			h.log.Warn("local file listing failed",
				slog.Int64("run_id", runID), "err", err)
			metrics.RecordSourceFailure("local", "list")
		} else {
			items = append(items, fileItems...)
		}

	default: // ModeUnknown, ModeHybrid
		h.log.Info("storage mode undetermined, listing all sources",
			slog.Int64("run_id", runID),
			slog.String("mode", string(mode)))
		items = append(items, h.tryListFromObjectStore(ctx, run, prefix)...)
		items = append(items, h.tryListFromLocal(ctx, run, prefix)...)
	}

	return dedupeByPath(items), nil
}

// LoadContent returns the bytes at a virtual path, or
// interfaces.ErrObjectNotFound. Database-resident log paths are routed to
// the relational adapter first on local and undetermined runs; undetermined
// runs then fall back through the object store and the local filesystem,
// returning the first non-empty result. A zero-byte object in one source
// must not mask real content in the next.
func (h *HybridAccessLayer) LoadContent(ctx context.Context, runID int64, path string) ([]byte, error) {
	run, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	mode := ParseStorageMode(run.StorageMode)

	if mode == ModeUnknown || mode == ModeHybrid {
		if data := h.tryLoadFromDB(ctx, path); data != nil {
			return data, nil
		}
		if data := h.tryLoadFromBackend(ctx, run, storage.ModeS3, path); data != nil {
			return data, nil
		}
		if data := h.tryLoadFromBackend(ctx, run, storage.ModeLocal, path); data != nil {
			return data, nil
		}
		return nil, interfaces.ErrObjectNotFound
	}

	if mode == ModeLocal && IsOperationLogPath(path) {
		if operationID, ok := ExtractOperationID(path); ok {
			data, err := h.db.LoadOperationLog(ctx, operationID)
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, interfaces.ErrObjectNotFound) {
				return nil, err
			}
			// Fall through to the filesystem; the log may predate
			// database-resident storage.
		}
	}

	backend, err := h.backends.backend(string(mode))
	if err != nil {
		return nil, err
	}
	return backend.Load(ctx, run.Address()+path)
}

// GetDownloadURL returns a reference the caller can use to download the
// content at a virtual path: a presigned URL for object store runs, the
// database content route for relational log paths, and the direct download
// route otherwise. For an existing run it always returns some reference.
func (h *HybridAccessLayer) GetDownloadURL(ctx context.Context, runID int64, path string) (string, error) {
	run, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	mode := ParseStorageMode(run.StorageMode)
	fullPath := run.Address() + path

	if mode == ModeUnknown || mode == ModeHybrid {
		if IsOperationLogPath(path) {
			if operationID, ok := ExtractOperationID(path); ok {
				return dbContentURL(runID, path, operationID), nil
			}
		}
		if url := h.tryPresign(ctx, fullPath); url != "" {
			return url, nil
		}
		return directDownloadURL(fullPath), nil
	}

	if mode == ModeLocal && IsOperationLogPath(path) {
		if operationID, ok := ExtractOperationID(path); ok {
			return dbContentURL(runID, path, operationID), nil
		}
	}

	if mode == ModeS3 {
		if url := h.tryPresign(ctx, fullPath); url != "" {
			return url, nil
		}
	}

	return directDownloadURL(fullPath), nil
}

// GetStorageInfo computes a descriptive storage snapshot for a run,
// inferring the mode when it was never persisted and layering advisory
// hybrid detection on top of the single persisted mode.
func (h *HybridAccessLayer) GetStorageInfo(ctx context.Context, runID int64) (*StorageInfo, error) {
	run, err := h.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	mode := ParseStorageMode(run.StorageMode)
	inferred := false
	if mode == ModeUnknown {
		mode, err = h.resolver.Infer(ctx, run)
		if err != nil {
			return nil, err
		}
		inferred = true
	}

	hasObjectData, s3Path := h.resolver.objectStoreHasData(ctx, run)
	hasRelationalData := h.resolver.relationalHasData(ctx, runID)
	var localPath string
	if hasRelationalData {
		localPath = fmt.Sprintf("db://postgres/runs/%d/", runID)
	}

	info := &StorageInfo{
		Mode:           mode,
		StorageAddress: run.Address(),
		Inferred:       inferred,
		IsHybrid:       hasObjectData && hasRelationalData,
		S3Path:         s3Path,
		LocalPath:      localPath,
	}

	switch mode {
	case ModeS3, ModeHybrid:
		info.FullPath = s3Path
		if info.FullPath == "" {
			info.FullPath = fmt.Sprintf("s3://%s/%s", h.cfg.S3.Bucket, run.Address())
		}
		logSource := "s3"
		if hasRelationalData {
			logSource = "hybrid"
		}
		info.DataSources = map[string]string{
			"logs": logSource,
			"yaml": "s3",
			"data": "s3",
		}

	case ModeLocal:
		info.FullPath = localPath
		if info.FullPath == "" {
			info.FullPath = fmt.Sprintf("db://postgres/runs/%d/", runID)
		}
		logSource := "database"
		if hasObjectData {
			logSource = "hybrid"
		}
		info.DataSources = map[string]string{
			"logs": logSource,
			"yaml": "database_or_none",
			"data": "database_or_none",
		}

	default:
		info.FullPath = "unknown://"
		info.DataSources = map[string]string{
			"logs": "unknown",
			"yaml": "unknown",
			"data": "unknown",
		}
		info.Warning = unknownModeWarning
	}

	return info, nil
}

// listFileContentsAt lists one backend at the run's storage address plus the
// requested virtual prefix and converts the result to content items.
func (h *HybridAccessLayer) listFileContentsAt(ctx context.Context, run *interfaces.Run, backendMode, prefix string) ([]ContentItem, error) {
	backend, err := h.backends.backend(backendMode)
	if err != nil {
		return nil, err
	}

	fullPrefix := run.Address() + prefix
	result, err := backend.ListWithDirectories(ctx, fullPrefix, "/")
	if err != nil {
		return nil, err
	}
	return convertListing(result, run.Address(), backendMode), nil
}

// tryListFromObjectStore lists the object store best effort; failures are
// swallowed and counted.
func (h *HybridAccessLayer) tryListFromObjectStore(ctx context.Context, run *interfaces.Run, prefix string) []ContentItem {
	items, err := h.listFileContentsAt(ctx, run, storage.ModeS3, prefix)
	if err != nil {
		h.log.Debug("object store listing fallback failed",
			slog.Int64("run_id", run.ID), "err", err)
		metrics.RecordSourceFailure("s3", "list")
		return nil
	}
	return items
}

// tryListFromLocal lists the relational adapter and the local filesystem
// best effort; each source's failures are swallowed individually.
func (h *HybridAccessLayer) tryListFromLocal(ctx context.Context, run *interfaces.Run, prefix string) []ContentItem {
	var items []ContentItem

	dirs, err := h.db.ListVirtualDirectories(ctx, run.ID, prefix)
	if err != nil {
		h.log.Debug("relational listing fallback failed",
			slog.Int64("run_id", run.ID), "err", err)
		metrics.RecordSourceFailure("db", "list")
	} else {
		logs, err := h.db.ListOperationLogs(ctx, run.ID, prefix)
		if err != nil {
			h.log.Debug("relational log listing fallback failed",
				slog.Int64("run_id", run.ID), "err", err)
			metrics.RecordSourceFailure("db", "list")
		} else {
			for i := range dirs {
				dirs[i].Backend = storage.ModeLocal
			}
			for i := range logs {
				logs[i].Backend = storage.ModeLocal
			}
			items = append(items, dirs...)
			items = append(items, logs...)
		}
	}

	fileItems, err := h.listFileContentsAt(ctx, run, storage.ModeLocal, prefix)
	if err != nil {
		h.log.Debug("local filesystem listing fallback failed",
			slog.Int64("run_id", run.ID), "err", err)
		metrics.RecordSourceFailure("local", "list")
	} else {
		items = append(items, fileItems...)
	}

	return items
}

// tryLoadFromDB loads a database-resident log if the path addresses one.
// Failures and empty results yield nil.
func (h *HybridAccessLayer) tryLoadFromDB(ctx context.Context, path string) []byte {
	if !IsOperationLogPath(path) {
		return nil
	}
	operationID, ok := ExtractOperationID(path)
	if !ok {
		return nil
	}
	data, err := h.db.LoadOperationLog(ctx, operationID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrObjectNotFound) {
			h.log.Debug("relational load fallback failed",
				slog.Int64("operation_id", operationID), "err", err)
			metrics.RecordSourceFailure("db", "load")
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

// tryLoadFromBackend loads from one backend best effort. Failures and empty
// results yield nil so the caller moves on to the next source.
func (h *HybridAccessLayer) tryLoadFromBackend(ctx context.Context, run *interfaces.Run, backendMode, path string) []byte {
	backend, err := h.backends.backend(backendMode)
	if err != nil {
		return nil
	}
	data, err := backend.Load(ctx, run.Address()+path)
	if err != nil {
		if !errors.Is(err, interfaces.ErrObjectNotFound) {
			h.log.Debug("backend load fallback failed",
				slog.String("backend", backendMode),
				slog.Int64("run_id", run.ID), "err", err)
			metrics.RecordSourceFailure(backendMode, "load")
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

// tryPresign generates a presigned URL best effort. Unsupported or failing
// backends yield an empty string so the caller falls back to a route.
func (h *HybridAccessLayer) tryPresign(ctx context.Context, fullPath string) string {
	backend, err := h.backends.objectStore()
	if err != nil {
		return ""
	}
	url, err := backend.GeneratePresignedURL(ctx, fullPath, interfaces.DefaultPresignTTL)
	if err != nil {
		if !errors.Is(err, interfaces.ErrPresignNotSupported) {
			h.log.Warn("failed to generate presigned URL", "err", err)
		}
		return ""
	}
	return url
}

// convertListing turns a backend listing into content items with virtual
// paths relative to the run's storage address.
func convertListing(result interfaces.ListResult, storageAddress, backendName string) []ContentItem {
	var items []ContentItem

	for _, obj := range result.Objects {
		relative := strings.TrimPrefix(obj.Key, storageAddress)
		if relative == "" || strings.HasSuffix(relative, "/") {
			continue
		}
		name := relative[strings.LastIndex(relative, "/")+1:]
		lastModified := obj.LastModified
		items = append(items, ContentItem{
			Name:         name,
			Path:         relative,
			Type:         "file",
			Size:         obj.Size,
			LastModified: &lastModified,
			ContentType:  DetectContentType(relative),
			Source:       SourceFile,
			Backend:      backendName,
		})
	}

	for _, prefix := range result.CommonPrefixes {
		relative := strings.TrimPrefix(prefix, storageAddress)
		if relative == "" {
			continue
		}
		trimmed := strings.TrimSuffix(relative, "/")
		name := trimmed[strings.LastIndex(trimmed, "/")+1:]
		items = append(items, ContentItem{
			Name:        name,
			Path:        relative,
			Type:        "directory",
			ContentType: ContentTypeOther,
			Source:      SourceFile,
			Backend:     backendName,
		})
	}

	return items
}

// dedupeByPath drops items whose virtual path was already seen.
func dedupeByPath(items []ContentItem) []ContentItem {
	seen := make(map[string]bool, len(items))
	unique := make([]ContentItem, 0, len(items))
	for _, item := range items {
		if seen[item.Path] {
			continue
		}
		seen[item.Path] = true
		unique = append(unique, item)
	}
	return unique
}

func dbContentURL(runID int64, path string, operationID int64) string {
	return fmt.Sprintf(dbContentRoutePattern, runID, url.QueryEscape(path), operationID)
}

func directDownloadURL(fullPath string) string {
	return fmt.Sprintf(directDownloadRoutePat, url.QueryEscape(fullPath))
}
