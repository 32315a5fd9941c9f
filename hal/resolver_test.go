package hal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/labcode-dev/labcode-log-server/interfaces"
	"github.com/labcode-dev/labcode-log-server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *storage.Config {
	return &storage.Config{
		DefaultMode: storage.ModeS3,
		S3:          storage.S3Config{Bucket: "labcode-dev-artifacts"},
		Local:       storage.LocalConfig{BasePath: "/data/storage"},
	}
}

// newTestHAL wires a hybrid access layer over in-memory stores and the given
// backend mocks.
func newTestHAL(runs *fakeRunStore, ops *fakeOpStore, s3Mock, localMock *MockStorageBackend) *HybridAccessLayer {
	registry := storage.NewBackendRegistry()
	registry.Register(storage.ModeS3, func(cfg *storage.Config, log *slog.Logger) (interfaces.StorageBackend, error) {
		return s3Mock, nil
	})
	registry.Register(storage.ModeLocal, func(cfg *storage.Config, log *slog.Logger) (interfaces.StorageBackend, error) {
		return localMock, nil
	})
	return New(runs, ops, registry, testConfig(), testLogger())
}

func strPtr(s string) *string { return &s }

func emptyListing() interfaces.ListResult {
	return interfaces.ListResult{}
}

func listingWithObjects(keys ...string) interfaces.ListResult {
	result := interfaces.ListResult{}
	for _, key := range keys {
		result.Objects = append(result.Objects, interfaces.ObjectInfo{Key: key, Size: 10})
	}
	return result
}

func TestInferLocalMode(t *testing.T) {
	run := &interfaces.Run{ID: 5}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()
	ops.addLog(42, 5, "fetched plate from hotel", nil)

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/5/", "/").Return(emptyListing(), nil)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	mode, err := h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeLocal, mode)
	assert.Equal(t, "local", runs.mode(5))
	assert.NotNil(t, run.StorageMode)
	assert.Equal(t, "local", *run.StorageMode)
	assert.Equal(t, 1, runs.setModeCalls)
}

func TestInferObjectStoreMode(t *testing.T) {
	run := &interfaces.Run{ID: 6}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/6/", "/").
		Return(listingWithObjects("runs/6/protocol.yaml"), nil)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	mode, err := h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeS3, mode)
	assert.Equal(t, "s3", runs.mode(6))

	// The relational store is consulted to rule out a hybrid run.
	assert.Equal(t, 1, ops.hasCalls)
}

// A run holding data in both the object store and the database is stamped
// hybrid, the same value batch inference assigns.
func TestInferHybridMode(t *testing.T) {
	run := &interfaces.Run{ID: 12}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()
	ops.addLog(61, 12, "centrifuge spin-down", nil)

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/12/", "/").
		Return(listingWithObjects("runs/12/protocol.yaml"), nil)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	mode, err := h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeHybrid, mode)
	assert.Equal(t, "hybrid", runs.mode(12))
	assert.Equal(t, 1, runs.setModeCalls)

	// The persisted value is a cache hit afterwards.
	mode, err = h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeHybrid, mode)
	assert.Equal(t, 1, ops.hasCalls)
}

func TestInferUnknownNotPersisted(t *testing.T) {
	run := &interfaces.Run{ID: 7}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/7/", "/").Return(emptyListing(), nil)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	mode, err := h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeUnknown, mode)
	assert.Equal(t, "", runs.mode(7))
	assert.Equal(t, 0, runs.setModeCalls)

	// An undetermined run stays open for re-inference.
	mode, err = h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeUnknown, mode)
	assert.Equal(t, 2, ops.hasCalls)
}

func TestInferCachedModeSkipsProbing(t *testing.T) {
	run := &interfaces.Run{ID: 8, StorageMode: strPtr("s3")}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()

	s3Mock := &MockStorageBackend{name: "s3"}
	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	mode, err := h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeS3, mode)

	s3Mock.AssertNotCalled(t, "ListWithDirectories", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, ops.hasCalls)
	assert.Equal(t, 0, runs.setModeCalls)
}

func TestInferPersistsOnce(t *testing.T) {
	run := &interfaces.Run{ID: 9}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()
	ops.addLog(70, 9, "dispensing complete", nil)

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/9/", "/").Return(emptyListing(), nil)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	for i := 0; i < 3; i++ {
		mode, err := h.Resolver().Infer(context.Background(), run)
		assert.NoError(t, err)
		assert.Equal(t, ModeLocal, mode)
	}

	// The first call persisted the mode; later calls are cache hits.
	assert.Equal(t, 1, runs.setModeCalls)
	assert.Equal(t, 1, ops.hasCalls)
	s3Mock.AssertNumberOfCalls(t, "ListWithDirectories", 1)
}

func TestInferSwallowsObjectStoreErrors(t *testing.T) {
	run := &interfaces.Run{ID: 10}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()
	ops.addLog(81, 10, "wash cycle done", nil)

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/10/", "/").
		Return(emptyListing(), assert.AnError)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	mode, err := h.Resolver().Infer(context.Background(), run)
	assert.NoError(t, err)
	assert.Equal(t, ModeLocal, mode)
}

func TestInferPropagatesRelationalErrors(t *testing.T) {
	run := &interfaces.Run{ID: 11}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()
	ops.failWith = assert.AnError

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/11/", "/").Return(emptyListing(), nil)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	_, err := h.Resolver().Infer(context.Background(), run)
	assert.Error(t, err)
	assert.Equal(t, 0, runs.setModeCalls)
}

func TestInferBatch(t *testing.T) {
	run5 := &interfaces.Run{ID: 5}
	run6 := &interfaces.Run{ID: 6}
	run7 := &interfaces.Run{ID: 7}
	run8 := &interfaces.Run{ID: 8}
	cached := &interfaces.Run{ID: 9, StorageMode: strPtr("s3")}

	runs := newFakeRunStore(run5, run6, run7, run8, cached)
	ops := newFakeOpStore()
	ops.addLog(42, 5, "log for run five", nil)
	ops.addLog(55, 8, "log for run eight", nil)

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/", "/").Return(interfaces.ListResult{
		CommonPrefixes: []string{"runs/6/", "runs/8/", "runs/999/"},
	}, nil)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	err := h.Resolver().InferBatch(context.Background(), []*interfaces.Run{run5, run6, run7, run8, cached})
	assert.NoError(t, err)

	assert.Equal(t, "local", runs.mode(5))
	assert.Equal(t, "s3", runs.mode(6))
	assert.Equal(t, "unknown", runs.mode(7))
	assert.Equal(t, "hybrid", runs.mode(8))
	assert.Equal(t, "s3", runs.mode(9))

	// In-memory runs reflect the persisted modes.
	assert.Equal(t, "hybrid", *run8.StorageMode)
	assert.Equal(t, "unknown", *run7.StorageMode)

	// One listing, one relational query, one persistence transaction.
	s3Mock.AssertNumberOfCalls(t, "ListWithDirectories", 1)
	assert.Equal(t, 1, ops.batchCalls)
	assert.Equal(t, 1, runs.batchModeCalls)
	assert.Equal(t, 0, runs.setModeCalls)
}

func TestInferBatchAllCachedIsNoop(t *testing.T) {
	run1 := &interfaces.Run{ID: 1, StorageMode: strPtr("s3")}
	run2 := &interfaces.Run{ID: 2, StorageMode: strPtr("local")}
	runs := newFakeRunStore(run1, run2)
	ops := newFakeOpStore()

	s3Mock := &MockStorageBackend{name: "s3"}
	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	err := h.Resolver().InferBatch(context.Background(), []*interfaces.Run{run1, run2})
	assert.NoError(t, err)

	s3Mock.AssertNotCalled(t, "ListWithDirectories", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, ops.batchCalls)
	assert.Equal(t, 0, runs.batchModeCalls)
}

func TestInferBatchSwallowsSourceErrors(t *testing.T) {
	run := &interfaces.Run{ID: 3}
	runs := newFakeRunStore(run)
	ops := newFakeOpStore()

	s3Mock := &MockStorageBackend{name: "s3"}
	s3Mock.On("ListWithDirectories", mock.Anything, "runs/", "/").
		Return(emptyListing(), assert.AnError)

	h := newTestHAL(runs, ops, s3Mock, &MockStorageBackend{name: "local"})

	err := h.Resolver().InferBatch(context.Background(), []*interfaces.Run{run})
	assert.NoError(t, err)
	assert.Equal(t, "unknown", runs.mode(3))
}

// Batch inference and per-run inference persist the same mode for the same
// external state, including runs holding data in both sources.
func TestInferBatchMatchesSingle(t *testing.T) {
	newRuns := func() []*interfaces.Run {
		return []*interfaces.Run{{ID: 20}, {ID: 21}, {ID: 22}}
	}

	setup := func(runs []*interfaces.Run) (*HybridAccessLayer, *fakeRunStore) {
		store := newFakeRunStore(runs...)
		ops := newFakeOpStore()
		ops.addLog(90, 21, "aspirated 50ul", nil)
		ops.addLog(91, 22, "log also present in db", nil)

		s3Mock := &MockStorageBackend{name: "s3"}
		s3Mock.On("ListWithDirectories", mock.Anything, "runs/20/", "/").
			Return(listingWithObjects("runs/20/protocol.yaml"), nil)
		s3Mock.On("ListWithDirectories", mock.Anything, "runs/21/", "/").Return(emptyListing(), nil)
		s3Mock.On("ListWithDirectories", mock.Anything, "runs/22/", "/").
			Return(listingWithObjects("runs/22/data.csv"), nil)
		s3Mock.On("ListWithDirectories", mock.Anything, "runs/", "/").Return(interfaces.ListResult{
			CommonPrefixes: []string{"runs/20/", "runs/22/"},
		}, nil)

		return newTestHAL(store, ops, s3Mock, &MockStorageBackend{name: "local"}), store
	}

	singleRuns := newRuns()
	hSingle, singleStore := setup(singleRuns)
	for _, run := range singleRuns {
		_, err := hSingle.Resolver().Infer(context.Background(), run)
		assert.NoError(t, err)
	}

	batchRuns := newRuns()
	hBatch, batchStore := setup(batchRuns)
	err := hBatch.Resolver().InferBatch(context.Background(), batchRuns)
	assert.NoError(t, err)

	assert.Equal(t, "s3", singleStore.mode(20))
	assert.Equal(t, "local", singleStore.mode(21))
	assert.Equal(t, "hybrid", singleStore.mode(22))
	for _, id := range []int64{20, 21, 22} {
		assert.Equal(t, singleStore.mode(id), batchStore.mode(id))
	}
}
