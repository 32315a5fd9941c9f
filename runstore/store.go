package runstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/labcode-dev/labcode-log-server/interfaces"
)

// Store implements interfaces.RunStore and interfaces.OperationLogStore.
type Store struct {
	db  *DB
	log *slog.Logger
}

// NewStore creates a store over the given database.
func NewStore(db *DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// GetRun fetches a run by id, excluding soft-deleted rows.
func (s *Store) GetRun(ctx context.Context, id int64) (*interfaces.Run, error) {
	query := `
		SELECT id, COALESCE(storage_address, ''), storage_mode
		FROM runs
		WHERE id = $1 AND deleted_at IS NULL
	`

	run := &interfaces.Run{}
	err := s.db.QueryRow(ctx, query, id).Scan(&run.ID, &run.StorageAddress, &run.StorageMode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", interfaces.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch run %d: %w", id, err)
	}
	return run, nil
}

// SetStorageMode persists an inferred storage mode for one run.
func (s *Store) SetStorageMode(ctx context.Context, id int64, mode string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE runs SET storage_mode = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, mode)
	if err != nil {
		return fmt.Errorf("failed to set storage_mode for run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", interfaces.ErrRunNotFound, id)
	}

	s.log.Info("persisted inferred storage mode",
		slog.Int64("run_id", id),
		slog.String("mode", mode))
	return nil
}

// SetStorageModes persists inferred modes for many runs in one transaction.
// An empty map is a no-op.
func (s *Store) SetStorageModes(ctx context.Context, modes map[int64]string) error {
	if len(modes) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for id, mode := range modes {
		batch.Queue(`UPDATE runs SET storage_mode = $2 WHERE id = $1 AND deleted_at IS NULL`, id, mode)
	}

	results := tx.SendBatch(ctx, batch)
	for range modes {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to batch-update storage modes: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit storage mode updates: %w", err)
	}

	s.log.Info("batch persisted storage modes", slog.Int("count", len(modes)))
	return nil
}

// HasOperationLogs reports whether any operation under the run has non-empty
// log text.
func (s *Store) HasOperationLogs(ctx context.Context, runID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM operations o
			JOIN processes p ON p.id = o.process_id
			WHERE p.run_id = $1 AND o.log IS NOT NULL AND o.log <> ''
		)
	`

	var exists bool
	if err := s.db.QueryRow(ctx, query, runID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check operation logs for run %d: %w", runID, err)
	}
	return exists, nil
}

// RunsWithOperationLogs returns the subset of runIDs with at least one
// non-empty operation log, in a single query.
func (s *Store) RunsWithOperationLogs(ctx context.Context, runIDs []int64) ([]int64, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT p.run_id
		FROM processes p
		JOIN operations o ON o.process_id = p.id
		WHERE p.run_id = ANY($1) AND o.log IS NOT NULL AND o.log <> ''
	`

	rows, err := s.db.Query(ctx, query, runIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-check operation logs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch-check rows: %w", err)
	}
	return ids, nil
}

// ListLoggedOperations returns metadata for every operation under the run
// with non-empty log text.
func (s *Store) ListLoggedOperations(ctx context.Context, runID int64) ([]interfaces.OperationLogMeta, error) {
	query := `
		SELECT o.id, p.run_id, COALESCE(o.name, ''), octet_length(o.log), o.finished_at
		FROM operations o
		JOIN processes p ON p.id = o.process_id
		WHERE p.run_id = $1 AND o.log IS NOT NULL AND o.log <> ''
		ORDER BY o.id
	`

	rows, err := s.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logged operations for run %d: %w", runID, err)
	}
	defer rows.Close()

	var metas []interfaces.OperationLogMeta
	for rows.Next() {
		var m interfaces.OperationLogMeta
		if err := rows.Scan(&m.OperationID, &m.RunID, &m.Name, &m.Size, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation log meta: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operation log rows: %w", err)
	}
	return metas, nil
}

// GetOperationLogMeta returns metadata for one operation's log, or
// interfaces.ErrObjectNotFound when the operation is missing or its log is
// empty.
func (s *Store) GetOperationLogMeta(ctx context.Context, operationID int64) (*interfaces.OperationLogMeta, error) {
	query := `
		SELECT o.id, p.run_id, COALESCE(o.name, ''), octet_length(o.log), o.finished_at
		FROM operations o
		JOIN processes p ON p.id = o.process_id
		WHERE o.id = $1 AND o.log IS NOT NULL AND o.log <> ''
	`

	m := &interfaces.OperationLogMeta{}
	err := s.db.QueryRow(ctx, query, operationID).Scan(
		&m.OperationID, &m.RunID, &m.Name, &m.Size, &m.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch log meta for operation %d: %w", operationID, err)
	}
	return m, nil
}

// LoadOperationLog returns the log text for one operation, or
// interfaces.ErrObjectNotFound when missing or empty.
func (s *Store) LoadOperationLog(ctx context.Context, operationID int64) ([]byte, error) {
	var logText string
	err := s.db.QueryRow(ctx,
		`SELECT o.log FROM operations o WHERE o.id = $1 AND o.log IS NOT NULL AND o.log <> ''`,
		operationID).Scan(&logText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, interfaces.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to load log for operation %d: %w", operationID, err)
	}
	return []byte(logText), nil
}
