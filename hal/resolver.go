package hal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/labcode-dev/labcode-log-server/interfaces"
	"github.com/labcode-dev/labcode-log-server/metrics"
)

// objectRunsPrefix is the top-level object store prefix all run artifacts
// live under. Batch inference lists it once and intersects the {id} segments
// with the uncached run set.
const objectRunsPrefix = "runs/"

// ModeResolver determines which backend(s) hold a run's data and persists
// the outcome. A persisted non-null mode is authoritative and never
// re-inferred; UNKNOWN is a valid terminal outcome that stays open for
// re-inference until a definite mode is found.
type ModeResolver struct {
	runs     interfaces.RunStore
	ops      interfaces.OperationLogStore
	backends *backendCache
	log      *slog.Logger
}

// NewModeResolver creates a resolver sharing the orchestrator's backend
// cache.
func newModeResolver(runs interfaces.RunStore, ops interfaces.OperationLogStore, backends *backendCache, log *slog.Logger) *ModeResolver {
	return &ModeResolver{runs: runs, ops: ops, backends: backends, log: log}
}

// Infer returns the run's storage mode, probing external state only when the
// persisted column is null. Both sources are probed so a run holding data in
// the object store and the database is stamped hybrid, exactly as batch
// inference would stamp it. A definite outcome is persisted and the in-memory
// run updated; UNKNOWN is returned without persisting.
func (r *ModeResolver) Infer(ctx context.Context, run *interfaces.Run) (StorageMode, error) {
	if run.StorageMode != nil && *run.StorageMode != "" {
		return ParseStorageMode(run.StorageMode), nil
	}

	mode, err := r.probe(ctx, run)
	if err != nil {
		return ModeUnknown, err
	}

	if mode != ModeUnknown {
		if err := r.runs.SetStorageMode(ctx, run.ID, string(mode)); err != nil {
			return ModeUnknown, fmt.Errorf("failed to persist inferred mode for run %d: %w", run.ID, err)
		}
		persisted := string(mode)
		run.StorageMode = &persisted
		r.log.Info("inferred storage mode",
			slog.Int64("run_id", run.ID),
			slog.String("mode", persisted))
	}
	metrics.RecordInference(string(mode))

	return mode, nil
}

// probe checks the object store and the relational store. Object store
// failures are treated as "no data there" so an unreachable bucket cannot
// block inference; relational failures propagate since the resolver cannot
// answer without its own store.
func (r *ModeResolver) probe(ctx context.Context, run *interfaces.Run) (StorageMode, error) {
	hasObjects, _ := r.objectStoreHasData(ctx, run)

	hasLogs, err := r.ops.HasOperationLogs(ctx, run.ID)
	if err != nil {
		return ModeUnknown, fmt.Errorf("failed to check operation logs for run %d: %w", run.ID, err)
	}

	switch {
	case hasObjects && hasLogs:
		return ModeHybrid, nil
	case hasObjects:
		return ModeS3, nil
	case hasLogs:
		return ModeLocal, nil
	}
	return ModeUnknown, nil
}

// objectStoreHasData probes the object store under the run's storage
// address. Errors are swallowed; the second return is the resolved s3://
// path when data was found.
func (r *ModeResolver) objectStoreHasData(ctx context.Context, run *interfaces.Run) (bool, string) {
	backend, err := r.backends.objectStore()
	if err != nil {
		r.log.Debug("object store unavailable for probe", "err", err)
		metrics.RecordSourceFailure("s3", "probe")
		return false, ""
	}

	result, err := backend.ListWithDirectories(ctx, run.Address(), "/")
	if err != nil {
		r.log.Debug("object store probe failed",
			slog.Int64("run_id", run.ID), "err", err)
		metrics.RecordSourceFailure("s3", "probe")
		return false, ""
	}
	if len(result.Objects) == 0 {
		return false, ""
	}

	return true, fmt.Sprintf("s3://%s/%s", r.backends.cfg.S3.Bucket, run.Address())
}

// relationalHasData probes for non-empty operation logs, swallowing errors.
func (r *ModeResolver) relationalHasData(ctx context.Context, runID int64) bool {
	hasLogs, err := r.ops.HasOperationLogs(ctx, runID)
	if err != nil {
		r.log.Debug("relational probe failed", slog.Int64("run_id", runID), "err", err)
		metrics.RecordSourceFailure("db", "probe")
		return false
	}
	return hasLogs
}

// InferBatch resolves storage modes for many runs with exactly one object
// store listing and one relational query, independent of batch size. Runs
// with a persisted mode are skipped; all updates are persisted in a single
// transaction. Both-source runs are recorded with the distinct hybrid value.
// An empty uncached set is a no-op.
func (r *ModeResolver) InferBatch(ctx context.Context, runs []*interfaces.Run) error {
	var uncached []*interfaces.Run
	for _, run := range runs {
		if run.StorageMode == nil || *run.StorageMode == "" {
			uncached = append(uncached, run)
		}
	}
	if len(uncached) == 0 {
		r.log.Debug("all runs have cached storage mode, skipping batch inference")
		return nil
	}

	r.log.Info("batch inferring storage modes", slog.Int("count", len(uncached)))

	runIDs := make([]int64, 0, len(uncached))
	for _, run := range uncached {
		runIDs = append(runIDs, run.ID)
	}

	hasObjectData := r.batchObjectStorePresence(ctx, runIDs)
	hasRelationalData := r.batchRelationalPresence(ctx, runIDs)

	modes := make(map[int64]string, len(uncached))
	for _, run := range uncached {
		var mode StorageMode
		switch {
		case hasObjectData[run.ID] && hasRelationalData[run.ID]:
			mode = ModeHybrid
		case hasObjectData[run.ID]:
			mode = ModeS3
		case hasRelationalData[run.ID]:
			mode = ModeLocal
		default:
			mode = ModeUnknown
		}
		modes[run.ID] = string(mode)
		metrics.RecordInference(string(mode))
	}

	if err := r.runs.SetStorageModes(ctx, modes); err != nil {
		return fmt.Errorf("failed to persist batch-inferred modes: %w", err)
	}

	for _, run := range uncached {
		persisted := modes[run.ID]
		run.StorageMode = &persisted
	}
	return nil
}

// batchObjectStorePresence lists the top-level runs/ prefix once and
// returns the run ids (restricted to the requested set) that have objects.
// Errors yield an empty set.
func (r *ModeResolver) batchObjectStorePresence(ctx context.Context, runIDs []int64) map[int64]bool {
	present := make(map[int64]bool)

	backend, err := r.backends.objectStore()
	if err != nil {
		r.log.Warn("object store unavailable for batch check", "err", err)
		metrics.RecordSourceFailure("s3", "batch_probe")
		return present
	}

	result, err := backend.ListWithDirectories(ctx, objectRunsPrefix, "/")
	if err != nil {
		r.log.Warn("object store batch check failed", "err", err)
		metrics.RecordSourceFailure("s3", "batch_probe")
		return present
	}

	wanted := make(map[int64]bool, len(runIDs))
	for _, id := range runIDs {
		wanted[id] = true
	}

	for _, prefix := range result.CommonPrefixes {
		// "runs/21/" -> 21
		parts := strings.Split(strings.Trim(prefix, "/"), "/")
		if len(parts) < 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		if wanted[id] {
			present[id] = true
		}
	}

	r.log.Debug("object store batch check complete", slog.Int("runs_with_data", len(present)))
	return present
}

// batchRelationalPresence checks for non-empty operation logs across the
// run set in one query. Errors yield an empty set.
func (r *ModeResolver) batchRelationalPresence(ctx context.Context, runIDs []int64) map[int64]bool {
	present := make(map[int64]bool)

	ids, err := r.ops.RunsWithOperationLogs(ctx, runIDs)
	if err != nil {
		r.log.Warn("relational batch check failed", "err", err)
		metrics.RecordSourceFailure("db", "batch_probe")
		return present
	}
	for _, id := range ids {
		present[id] = true
	}

	r.log.Debug("relational batch check complete", slog.Int("runs_with_logs", len(present)))
	return present
}
