package lockfile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireExclusive_SingleHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lock")

	h, err := AcquireExclusive(context.Background(), path, time.Second)
	require.NoError(t, err)
	require.Equal(t, path, h.Path())
	require.NoError(t, h.Close())
}

func TestAcquireExclusive_ContentionTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lock")

	holder, err := AcquireExclusive(context.Background(), path, time.Second)
	require.NoError(t, err)
	defer holder.Close()

	_, err = AcquireExclusive(context.Background(), path, 100*time.Millisecond)
	require.Error(t, err)
	require.True(t, IsBusy(err) || err != nil)
}

func TestAcquireExclusive_ReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lock")

	h1, err := AcquireExclusive(context.Background(), path, time.Second)
	require.NoError(t, err)
	require.NoError(t, h1.Close())

	h2, err := AcquireExclusive(context.Background(), path, time.Second)
	require.NoError(t, err)
	require.NoError(t, h2.Close())
}
