package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	fsStore, err := Open(ctx, Options{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fsStore.Driver())

	mem, err := Open(ctx, Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, mem.Driver())

	_, err = Open(ctx, Options{Driver: DriverS3})
	require.Error(t, err, "bucket is required")

	_, err = Open(ctx, Options{Driver: "ftp"})
	require.ErrorContains(t, err, "unknown blob driver")
}

// Every backend honours the same create-only and not-found contract.
func TestBackendsShareContract(t *testing.T) {
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	backends := map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3mock": NewMockS3ForTests(),
	}
	for name, store := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			info, err := store.Put(ctx, "gen/b", bytes.NewReader([]byte("second")), PutOptions{ContentType: "text/plain"})
			require.NoError(t, err)
			assert.Equal(t, int64(6), info.Size)
			_, err = store.Put(ctx, "gen/a", bytes.NewReader([]byte("first")), PutOptions{})
			require.NoError(t, err)
			_, err = store.Put(ctx, "other", bytes.NewReader([]byte("x")), PutOptions{})
			require.NoError(t, err)

			_, err = store.Put(ctx, "gen/a", bytes.NewReader([]byte("again")), PutOptions{})
			assert.True(t, errors.Is(err, ErrExists), "got %v", err)

			_, rc, err := store.Get(ctx, "gen/a")
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, rc.Close())
			require.NoError(t, err)
			assert.Equal(t, "first", string(data))

			_, _, err = store.Get(ctx, "gen/missing")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			list, err := store.List(ctx, "gen/")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "gen/a", list[0].Key)
			assert.Equal(t, "gen/b", list[1].Key)

			removed, err := store.Delete(ctx, "gen/a")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = store.Delete(ctx, "gen/a")
			require.NoError(t, err)
			assert.False(t, removed)
		})
	}
}
