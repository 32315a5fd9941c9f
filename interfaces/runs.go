package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound indicates the requested run does not exist or is deleted.
var ErrRunNotFound = errors.New("run not found")

// Run is the slice of the run record the hybrid access layer reads, plus the
// one column it is permitted to write back (StorageMode).
type Run struct {
	ID             int64
	StorageAddress string

	// StorageMode is the persisted backend classification. Nil means the
	// mode was never inferred. Once set to a definite value it is treated
	// as authoritative and never re-inferred.
	StorageMode *string
}

// Address returns the run's backend-relative path prefix, deriving the
// default runs/{id}/ prefix when no storage address is recorded.
func (r *Run) Address() string {
	if r.StorageAddress != "" {
		return r.StorageAddress
	}
	return fmt.Sprintf("runs/%d/", r.ID)
}

// OperationLogMeta describes one operation's database-resident log text.
type OperationLogMeta struct {
	OperationID int64
	RunID       int64
	Name        string
	Size        int64
	FinishedAt  *time.Time
}

// RunStore provides run lookup and storage mode persistence.
type RunStore interface {
	// GetRun fetches a run by id. Returns ErrRunNotFound for unknown or
	// soft-deleted runs.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// SetStorageMode persists an inferred storage mode for one run.
	SetStorageMode(ctx context.Context, id int64, mode string) error

	// SetStorageModes persists inferred modes for many runs in a single
	// transaction.
	SetStorageModes(ctx context.Context, modes map[int64]string) error
}

// OperationLogStore answers queries about database-resident operation logs,
// scoped through the process table to runs.
type OperationLogStore interface {
	// HasOperationLogs reports whether any operation under the run has
	// non-empty log text.
	HasOperationLogs(ctx context.Context, runID int64) (bool, error)

	// RunsWithOperationLogs returns the subset of runIDs that have at
	// least one operation with non-empty log text, in one query.
	RunsWithOperationLogs(ctx context.Context, runIDs []int64) ([]int64, error)

	// ListLoggedOperations returns metadata for every operation under the
	// run that has non-empty log text.
	ListLoggedOperations(ctx context.Context, runID int64) ([]OperationLogMeta, error)

	// GetOperationLogMeta returns metadata for one operation's log, or
	// ErrObjectNotFound when the operation is missing or its log is empty.
	GetOperationLogMeta(ctx context.Context, operationID int64) (*OperationLogMeta, error)

	// LoadOperationLog returns the log text for one operation, or
	// ErrObjectNotFound when missing or empty.
	LoadOperationLog(ctx context.Context, operationID int64) ([]byte, error)
}
