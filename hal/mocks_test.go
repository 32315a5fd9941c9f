package hal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/labcode-dev/labcode-log-server/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockStorageBackend implements interfaces.StorageBackend for testing.
type MockStorageBackend struct {
	mock.Mock
	name string
}

func (m *MockStorageBackend) Load(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) LoadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorageBackend) ListObjects(ctx context.Context, prefix string) ([]interfaces.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.ObjectInfo), args.Error(1)
}

func (m *MockStorageBackend) ListWithDirectories(ctx context.Context, prefix, delimiter string) (interfaces.ListResult, error) {
	args := m.Called(ctx, prefix, delimiter)
	return args.Get(0).(interfaces.ListResult), args.Error(1)
}

func (m *MockStorageBackend) Exists(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorageBackend) GetMetadata(ctx context.Context, path string) (*interfaces.ObjectMetadata, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ObjectMetadata), args.Error(1)
}

func (m *MockStorageBackend) GeneratePresignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, path, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockStorageBackend) Save(ctx context.Context, path string, content []byte, contentType string) error {
	args := m.Called(ctx, path, content, contentType)
	return args.Error(0)
}

func (m *MockStorageBackend) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockStorageBackend) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

// fakeRunStore is an in-memory interfaces.RunStore tracking persistence
// calls.
type fakeRunStore struct {
	runs           map[int64]*interfaces.Run
	setModeCalls   int
	batchModeCalls int
}

func newFakeRunStore(runs ...*interfaces.Run) *fakeRunStore {
	s := &fakeRunStore{runs: make(map[int64]*interfaces.Run)}
	for _, r := range runs {
		s.runs[r.ID] = r
	}
	return s
}

func (s *fakeRunStore) GetRun(ctx context.Context, id int64) (*interfaces.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrRunNotFound, id)
	}
	copied := *run
	return &copied, nil
}

func (s *fakeRunStore) SetStorageMode(ctx context.Context, id int64, mode string) error {
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %d", interfaces.ErrRunNotFound, id)
	}
	s.setModeCalls++
	persisted := mode
	run.StorageMode = &persisted
	return nil
}

func (s *fakeRunStore) SetStorageModes(ctx context.Context, modes map[int64]string) error {
	s.batchModeCalls++
	for id, mode := range modes {
		if run, ok := s.runs[id]; ok {
			persisted := mode
			run.StorageMode = &persisted
		}
	}
	return nil
}

func (s *fakeRunStore) mode(id int64) string {
	run := s.runs[id]
	if run == nil || run.StorageMode == nil {
		return ""
	}
	return *run.StorageMode
}

// fakeOpStore is an in-memory interfaces.OperationLogStore. Setting failWith
// makes every query fail.
type fakeOpStore struct {
	metas    map[int64]interfaces.OperationLogMeta
	logs     map[int64]string
	failWith error

	hasCalls   int
	batchCalls int
}

func newFakeOpStore() *fakeOpStore {
	return &fakeOpStore{
		metas: make(map[int64]interfaces.OperationLogMeta),
		logs:  make(map[int64]string),
	}
}

func (s *fakeOpStore) addLog(operationID, runID int64, logText string, finishedAt *time.Time) {
	s.metas[operationID] = interfaces.OperationLogMeta{
		OperationID: operationID,
		RunID:       runID,
		Size:        int64(len(logText)),
		FinishedAt:  finishedAt,
	}
	s.logs[operationID] = logText
}

func (s *fakeOpStore) HasOperationLogs(ctx context.Context, runID int64) (bool, error) {
	s.hasCalls++
	if s.failWith != nil {
		return false, s.failWith
	}
	for _, m := range s.metas {
		if m.RunID == runID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeOpStore) RunsWithOperationLogs(ctx context.Context, runIDs []int64) ([]int64, error) {
	s.batchCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	wanted := make(map[int64]bool, len(runIDs))
	for _, id := range runIDs {
		wanted[id] = true
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, m := range s.metas {
		if wanted[m.RunID] && !seen[m.RunID] {
			seen[m.RunID] = true
			ids = append(ids, m.RunID)
		}
	}
	return ids, nil
}

func (s *fakeOpStore) ListLoggedOperations(ctx context.Context, runID int64) ([]interfaces.OperationLogMeta, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	var metas []interfaces.OperationLogMeta
	for _, m := range s.metas {
		if m.RunID == runID {
			metas = append(metas, m)
		}
	}
	return metas, nil
}

func (s *fakeOpStore) GetOperationLogMeta(ctx context.Context, operationID int64) (*interfaces.OperationLogMeta, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	m, ok := s.metas[operationID]
	if !ok {
		return nil, interfaces.ErrObjectNotFound
	}
	return &m, nil
}

func (s *fakeOpStore) LoadOperationLog(ctx context.Context, operationID int64) ([]byte, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	logText, ok := s.logs[operationID]
	if !ok {
		return nil, interfaces.ErrObjectNotFound
	}
	return []byte(logText), nil
}
