package flock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireReportsLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.lock")
	first := New(path)
	second := New(path)

	require.Nil(t, first.TryAcquire())
	assert.Equal(t, ErrLocked, second.TryAcquire())

	require.Nil(t, first.Release())
	require.Nil(t, second.TryAcquire())
	require.Nil(t, second.Release())
}

func TestAcquireContextWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")
	holder := New(path)
	require.Nil(t, holder.TryAcquire())

	waiter := New(path)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, waiter.AcquireContext(ctx))

	require.Nil(t, holder.Release())
	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.Nil(t, waiter.AcquireContext(ctx))
	require.Nil(t, waiter.Release())
}

func TestAcquireContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.lock")
	holder := New(path)
	require.Nil(t, holder.TryAcquire())
	defer holder.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, New(path).AcquireContext(ctx))
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/data/state/locks/modis.lock", New("/data/state/locks/modis.lock").Path())
}
