package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/labcode-dev/labcode-log-server/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := NewFileBackend(LocalConfig{BasePath: t.TempDir()}, log)
	require.NoError(t, err)
	return b
}

func TestFileBackendSaveAndLoad(t *testing.T) {
	b := newTestFileBackend(t)
	ctx := context.Background()

	err := b.Save(ctx, "runs/5/protocol.yaml", []byte("steps: []"), "application/yaml")
	require.NoError(t, err)

	data, err := b.Load(ctx, "runs/5/protocol.yaml")
	require.NoError(t, err)
	assert.Equal(t, "steps: []", string(data))

	exists, err := b.Exists(ctx, "runs/5/protocol.yaml")
	require.NoError(t, err)
	assert.True(t, exists)

	meta, err := b.GetMetadata(ctx, "runs/5/protocol.yaml")
	require.NoError(t, err)
	assert.Equal(t, int64(len("steps: []")), meta.Size)
}

func TestFileBackendLoadMissing(t *testing.T) {
	b := newTestFileBackend(t)

	_, err := b.Load(context.Background(), "runs/5/missing.txt")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	_, err = b.GetMetadata(context.Background(), "runs/5/missing.txt")
	assert.ErrorIs(t, err, interfaces.ErrObjectNotFound)

	exists, err := b.Exists(context.Background(), "runs/5/missing.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileBackendLoadStream(t *testing.T) {
	b := newTestFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "runs/5/data.csv", []byte("a,b,c\n1,2,3\n"), "text/csv"))

	stream, err := b.LoadStream(ctx, "runs/5/data.csv")
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n", string(data))
}

func TestFileBackendRejectsEscapingPaths(t *testing.T) {
	b := newTestFileBackend(t)
	ctx := context.Background()

	for _, path := range []string{
		"../outside.txt",
		"runs/../../outside.txt",
		"..",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := b.Load(ctx, path)
			assert.ErrorIs(t, err, interfaces.ErrInvalidPath)

			err = b.Save(ctx, path, []byte("x"), "")
			assert.ErrorIs(t, err, interfaces.ErrInvalidPath)
		})
	}

	// Dot segments that stay inside the root are fine.
	require.NoError(t, b.Save(ctx, "runs/5/../5/ok.txt", []byte("x"), ""))
	data, err := b.Load(ctx, "runs/5/ok.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestFileBackendListObjects(t *testing.T) {
	b := newTestFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "runs/5/protocol.yaml", []byte("a"), ""))
	require.NoError(t, b.Save(ctx, "runs/5/processes/1/data.bin", []byte("bb"), ""))
	require.NoError(t, b.Save(ctx, "runs/6/other.txt", []byte("c"), ""))

	objects, err := b.ListObjects(ctx, "runs/5/")
	require.NoError(t, err)
	require.Len(t, objects, 2)

	keys := []string{objects[0].Key, objects[1].Key}
	assert.Contains(t, keys, "runs/5/protocol.yaml")
	assert.Contains(t, keys, "runs/5/processes/1/data.bin")

	// A prefix with no directory behind it is an empty listing, not an
	// error.
	objects, err = b.ListObjects(ctx, "runs/999/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestFileBackendListWithDirectories(t *testing.T) {
	b := newTestFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "runs/5/protocol.yaml", []byte("a"), ""))
	require.NoError(t, b.Save(ctx, "runs/5/processes/1/data.bin", []byte("bb"), ""))

	result, err := b.ListWithDirectories(ctx, "runs/5/", "/")
	require.NoError(t, err)
	require.Len(t, result.Objects, 1)
	assert.Equal(t, "runs/5/protocol.yaml", result.Objects[0].Key)
	assert.Equal(t, []string{"runs/5/processes/"}, result.CommonPrefixes)

	result, err = b.ListWithDirectories(ctx, "runs/999/", "/")
	require.NoError(t, err)
	assert.Empty(t, result.Objects)
	assert.Empty(t, result.CommonPrefixes)
}

func TestFileBackendDelete(t *testing.T) {
	b := newTestFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, "runs/5/tmp.txt", []byte("x"), ""))
	require.NoError(t, b.Delete(ctx, "runs/5/tmp.txt"))

	exists, err := b.Exists(ctx, "runs/5/tmp.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting a missing file is not an error.
	assert.NoError(t, b.Delete(ctx, "runs/5/tmp.txt"))
}

func TestFileBackendPresignUnsupported(t *testing.T) {
	b := newTestFileBackend(t)

	_, err := b.GeneratePresignedURL(context.Background(), "runs/5/data.csv", interfaces.DefaultPresignTTL)
	assert.ErrorIs(t, err, interfaces.ErrPresignNotSupported)
}
